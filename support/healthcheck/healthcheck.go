// Package healthcheck probes the deployed services over HTTP and TCP. The
// probes are plain functions so callers compose their own sets; Services
// builds the standard set for a deployment and CheckAll fans it out.
package healthcheck

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Probe defaults. Every probe honours a per-request timeout and retries
// with exponential backoff capped at MaxDelay.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 1 * time.Second
	DefaultMaxDelay   = 8 * time.Second
)

// Result is the outcome of probing one service once, including retries.
type Result struct {
	Service        string  `json:"service"`
	Healthy        bool    `json:"healthy"`
	StatusCode     int     `json:"status_code,omitempty"`
	ResponseTimeMS float64 `json:"response_time_ms"`
	Endpoint       string  `json:"endpoint"`
	ErrorMessage   string  `json:"error_message,omitempty"`
	RetryCount     int     `json:"retry_count"`
}

// HTTPOptions parameterise one HTTP probe. Zero durations and counts fall
// back to the package defaults.
type HTTPOptions struct {
	URL            string
	ExpectedStatus int
	Timeout        time.Duration
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Service        string
	// Client overrides the HTTP client; tests inject one with a stub
	// transport.
	Client *http.Client
}

func (o *HTTPOptions) fill() {
	if o.ExpectedStatus == 0 {
		o.ExpectedStatus = http.StatusOK
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.Client == nil {
		o.Client = http.DefaultClient
	}
}

// CheckHTTP probes opts.URL, retrying on connection errors, timeouts and
// unexpected statuses with exponential backoff.
func CheckHTTP(ctx context.Context, opts HTTPOptions) Result {
	opts.fill()
	res := Result{Service: opts.Service, Endpoint: opts.URL}
	start := time.Now()
	defer func() { res.ResponseTimeMS = float64(time.Since(start).Microseconds()) / 1000 }()

	delay := opts.BaseDelay
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			res.RetryCount = attempt
			select {
			case <-ctx.Done():
				res.ErrorMessage = ctx.Err().Error()
				return res
			case <-time.After(delay):
			}
			delay *= 2
			if delay > opts.MaxDelay {
				delay = opts.MaxDelay
			}
		}

		status, err := fetch(ctx, opts)
		if err != nil {
			res.ErrorMessage = err.Error()
			continue
		}
		res.StatusCode = status
		if status == opts.ExpectedStatus {
			res.Healthy = true
			res.ErrorMessage = ""
			return res
		}
		res.ErrorMessage = fmt.Sprintf("expected status %d, got %d", opts.ExpectedStatus, status)
	}
	return res
}

func fetch(ctx context.Context, opts HTTPOptions) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := opts.Client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// TCPOptions parameterise one TCP probe.
type TCPOptions struct {
	Host    string
	Port    int
	Timeout time.Duration
	Service string
}

// CheckTCP reports a service healthy when its port accepts a connection
// within the timeout.
func CheckTCP(ctx context.Context, opts TCPOptions) Result {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	addr := net.JoinHostPort(opts.Host, fmt.Sprint(opts.Port))
	res := Result{Service: opts.Service, Endpoint: "tcp://" + addr}
	start := time.Now()

	dialer := net.Dialer{Timeout: opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	res.ResponseTimeMS = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		res.ErrorMessage = err.Error()
		return res
	}
	conn.Close()
	res.Healthy = true
	return res
}

// Probe is one named check ready to run.
type Probe struct {
	Service string
	Run     func(ctx context.Context) Result
}

// Summary collects the results of one probe set.
type Summary struct {
	Results   []Result  `json:"results"`
	CheckedAt time.Time `json:"checked_at"`
}

// HealthyCount returns how many probed services were healthy.
func (s *Summary) HealthyCount() int {
	n := 0
	for _, r := range s.Results {
		if r.Healthy {
			n++
		}
	}
	return n
}

// AllHealthy reports whether every probe passed.
func (s *Summary) AllHealthy() bool { return s.HealthyCount() == len(s.Results) }

// CheckAll runs every probe concurrently and returns the results in probe
// order.
func CheckAll(ctx context.Context, probes []Probe) *Summary {
	results := make([]Result, len(probes))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range probes {
		i, p := i, p
		g.Go(func() error {
			results[i] = p.Run(gctx)
			return nil
		})
	}
	// Probes report failure through their Result, never through an error.
	_ = g.Wait()
	return &Summary{Results: results, CheckedAt: time.Now().UTC()}
}
