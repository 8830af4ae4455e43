package healthcheck

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/geusemaker/geusemaker/api"
)

// SetOptions steer the standard probe set for a deployment.
type SetOptions struct {
	// IncludePostgres adds the TCP probe for the database; it is off by
	// default because the port is not exposed on every tier.
	IncludePostgres bool
	// Timeout applies to every probe; zero keeps the default.
	Timeout time.Duration
	// Client overrides the HTTP client for every HTTP probe.
	Client *http.Client
}

// serviceEndpoints maps each bundled service to its health path. The qdrant
// dashboard is probed separately because it runs behind the same port but a
// different handler.
var serviceEndpoints = []struct {
	service string
	port    string
	path    string
}{
	{"n8n", "n8n", "/healthz"},
	{"ollama", "ollama", "/api/version"},
	{"qdrant", "qdrant", "/health"},
	{"qdrant-dashboard", "qdrant", "/dashboard"},
	{"crawl4ai", "crawl4ai", "/health"},
}

// Services builds the standard probe set against host.
func Services(host string, opts SetOptions) []Probe {
	probes := make([]Probe, 0, len(serviceEndpoints)+1)
	for _, ep := range serviceEndpoints {
		ep := ep
		url := fmt.Sprintf("http://%s:%d%s", host, api.DefaultServicePorts[ep.port], ep.path)
		probes = append(probes, Probe{Service: ep.service, Run: func(ctx context.Context) Result {
			return CheckHTTP(ctx, HTTPOptions{
				URL:     url,
				Service: ep.service,
				Timeout: opts.Timeout,
				Client:  opts.Client,
			})
		}})
	}
	if opts.IncludePostgres {
		probes = append(probes, Probe{Service: "postgres", Run: func(ctx context.Context) Result {
			return CheckTCP(ctx, TCPOptions{
				Host:    host,
				Port:    api.DefaultServicePorts["postgres"],
				Timeout: opts.Timeout,
				Service: "postgres",
			})
		}})
	}
	return probes
}
