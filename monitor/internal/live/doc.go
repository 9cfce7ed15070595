// Package live implements the sample stream subscriber.
//
// A Subscriber owns exactly one push-stream connection per Run call. Every
// frame it receives marks the stream CONNECTED; frames that decode to a
// Sample are handed to the Sink. When the transport fails the Sink sees
// DISCONNECTED and Run returns a *types.TransportError. Run never retries;
// the session supervises reconnection.
package live
