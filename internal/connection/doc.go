// Package connection manages the realtime WebSocket session.
//
// A Manager owns one Socket and, each time it opens:
//   - starts the heartbeat ping
//   - sends the authKey handshake when credentials are configured
//   - replays every tracked subscription
//
// The Manager never reconnects by itself. A Supervisor drives Open/Wait in a
// loop with exponential backoff.
package connection
