// Package lifecycle sequences the datastore connection around the HTTP
// server: connect before accepting traffic, close after the server stops.
//
// States move strictly forward:
//
//	Disconnected -> Connecting -> Connected -> Closing -> Closed
//
// A failed connect is fatal and is never retried.
package lifecycle
