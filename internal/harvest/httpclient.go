package harvest

import (
	"net/http"
	"sync"
	"time"
)

// defaultHTTPTimeout bounds one provider call end to end; context
// cancellation can cut it shorter.
const defaultHTTPTimeout = 15 * time.Second

// ClientFactory hands out one http.Client per provider name so connection
// pools are shared across requests to the same host but isolated between
// providers.
type ClientFactory struct {
	mu      sync.Mutex
	clients map[string]*http.Client
	timeout time.Duration
}

// NewClientFactory creates a factory with the default per-call timeout.
func NewClientFactory() *ClientFactory {
	return &ClientFactory{
		clients: make(map[string]*http.Client),
		timeout: defaultHTTPTimeout,
	}
}

// ClientFor returns the shared client for a provider name, creating it on
// first use.
func (f *ClientFactory) ClientFor(name string) *http.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[name]; ok {
		return c
	}
	c := &http.Client{Timeout: f.timeout}
	f.clients[name] = c
	return c
}
