// Package alertfeed multiplexes one alert push-stream connection across any
// number of listeners.
//
// Manager is reference counted: the first Subscribe opens the connection,
// the unsubscribe handle returned to the last listener closes it. Each
// "alert" event is decoded once and passed to every registered listener
// synchronously, in registration order.
//
// On a transport error the connection is closed and discarded. Without a
// reconnect policy the feed stays down until the next Subscribe; with one
// (WithReconnect) it is redialed with backoff for as long as listeners
// remain.
package alertfeed
