package types

// ConnState is the per-stream connectivity state.
type ConnState string

const (
	Connected    ConnState = "CONNECTED"
	Disconnected ConnState = "DISCONNECTED"
)

// Freshness classifies how recently a sample was observed.
type Freshness string

const (
	Live    Freshness = "LIVE"
	Pending Freshness = "PENDING"
	Stale   Freshness = "STALE"
)

// Band is a metric severity band.
type Band string

const (
	Green  Band = "green"
	Yellow Band = "yellow"
	Red    Band = "red"
)

// Bands holds the severity band of every displayed metric.
type Bands struct {
	Speed           Band `json:"speed"`
	Density         Band `json:"density"`
	Bz              Band `json:"bz"`
	DynamicPressure Band `json:"dynamic_pressure"`
}
