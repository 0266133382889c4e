// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - WebSocket connects, disconnects and reconnects
//   - Sends per op and outcome (heartbeat pings included)
//   - Inbound message rate and buffer drops
//   - Tracked subscription count
package metrics
