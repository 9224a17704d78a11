package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/fcgi"
	"os"
	"sync"
)

// FastCGI serves the handler to a host that spawns the process and
// dispatches requests to it, so the process never binds a port itself.
// It satisfies lifecycle.Server.
type FastCGI struct {
	Handler http.Handler
	// Listener defaults to the socket the host passes on stdin.
	Listener net.Listener

	mu     sync.Mutex
	ln     net.Listener
	closed bool
}

func (f *FastCGI) ListenAndServe() error {
	ln := f.Listener
	if ln == nil {
		var err error
		if ln, err = net.FileListener(os.Stdin); err != nil {
			return fmt.Errorf("serverless: stdin is not a listening socket: %w", err)
		}
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		_ = ln.Close()
		return http.ErrServerClosed
	}
	f.ln = ln
	f.mu.Unlock()

	err := fcgi.Serve(ln, f.Handler)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return http.ErrServerClosed
	}
	return err
}

// Shutdown stops accepting requests from the host. fcgi has no drain, so
// requests already dispatched finish on their own.
func (f *FastCGI) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if f.ln != nil {
		return f.ln.Close()
	}
	return nil
}
