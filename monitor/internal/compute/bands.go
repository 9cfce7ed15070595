package compute

import (
	"github.com/obsidianstack/spacewatch/pkg/types"
)

// Default band ceilings. Speed in km/s, density in p/cm³, dynamic pressure
// in nPa, Bz in nT (southward negative).
const (
	DefaultSpeedGreen     = 500.0
	DefaultSpeedYellow    = 700.0
	DefaultDensityGreen   = 10.0
	DefaultDensityYellow  = 25.0
	DefaultPressureGreen  = 2.0
	DefaultPressureYellow = 6.0
	DefaultBzYellow       = -5.0
	DefaultBzRed          = -10.0
)

// Ceilings is a pair of ascending thresholds for ClassifyBand.
type Ceilings struct {
	Green  float64 `yaml:"green"`
	Yellow float64 `yaml:"yellow"`
}

// BzLimits holds the southward thresholds for ClassifyBz. Both are negative;
// Red must be ≤ Yellow.
type BzLimits struct {
	Yellow float64 `yaml:"yellow"`
	Red    float64 `yaml:"red"`
}

// Thresholds groups the band ceilings for every displayed metric.
type Thresholds struct {
	Speed    Ceilings `yaml:"speed"`
	Density  Ceilings `yaml:"density"`
	Pressure Ceilings `yaml:"dynamic_pressure"`
	Bz       BzLimits `yaml:"bz"`
}

// DefaultThresholds returns the stock ceilings.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Speed:    Ceilings{Green: DefaultSpeedGreen, Yellow: DefaultSpeedYellow},
		Density:  Ceilings{Green: DefaultDensityGreen, Yellow: DefaultDensityYellow},
		Pressure: Ceilings{Green: DefaultPressureGreen, Yellow: DefaultPressureYellow},
		Bz:       BzLimits{Yellow: DefaultBzYellow, Red: DefaultBzRed},
	}
}

// ClassifyBand returns red if value ≥ yellowCeiling, yellow if
// value ≥ greenCeiling, green otherwise.
func ClassifyBand(value, greenCeiling, yellowCeiling float64) types.Band {
	switch {
	case value >= yellowCeiling:
		return types.Red
	case value >= greenCeiling:
		return types.Yellow
	default:
		return types.Green
	}
}

// ClassifyBz applies the inverted rule for the southward IMF component.
func ClassifyBz(bz float64, lim BzLimits) types.Band {
	switch {
	case bz <= lim.Red:
		return types.Red
	case bz <= lim.Yellow:
		return types.Yellow
	default:
		return types.Green
	}
}

// Bands classifies every metric of s.
func (t Thresholds) Bands(s types.Sample) types.Bands {
	return types.Bands{
		Speed:           ClassifyBand(s.Speed, t.Speed.Green, t.Speed.Yellow),
		Density:         ClassifyBand(s.Density, t.Density.Green, t.Density.Yellow),
		Bz:              ClassifyBz(s.Bz, t.Bz),
		DynamicPressure: ClassifyBand(s.DynamicPressure, t.Pressure.Green, t.Pressure.Yellow),
	}
}
