// Package database provides the PostgreSQL connection pool and the durable
// subscription store.
//
// The store keeps the tracked symbol set across restarts. The streamer seeds
// the connection manager from it at startup and writes through on every
// subscribe/unsubscribe made over the control API.
package database
