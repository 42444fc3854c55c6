package recovery

import (
	"context"

	commonhttp "service-intake/internal/common/http"
)

// Prober checks that a dependency is reachable. Implementations must honour
// the context deadline.
type Prober interface {
	Probe(ctx context.Context) error
}

type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// HTTPProber issues a HEAD request to a well-known URL.
type HTTPProber struct {
	client *commonhttp.Client
	url    string
}

func NewHTTPProber(client *commonhttp.Client, url string) *HTTPProber {
	return &HTTPProber{client: client, url: url}
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	return p.client.Probe(ctx, p.url)
}

// Pinger is satisfied by the database and cache clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

func PingProber(p Pinger) Prober {
	return ProberFunc(p.Ping)
}
