// Package heartbeat implements the public-server lobby heartbeat (§4.13):
// a periodic HTTP GET announcing this server's metadata while it is
// marked public.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const interval = 5 * time.Second

// Info is the metadata sent on every heartbeat tick.
type Info struct {
	URL  string
	Name string
	Port int
	Map  string
}

// PlayerCounter reports the live player count at heartbeat time (the slot
// count is passed to New), decoupling this package from the registry type.
type PlayerCounter interface {
	Count() int
}

// Worker issues the periodic GET until its context is cancelled.
type Worker struct {
	info    Info
	slots   int
	counter PlayerCounter
	client  *http.Client
}

// New creates a Worker. slots is the configured max concurrent peers.
func New(info Info, slots int, counter PlayerCounter) *Worker {
	return &Worker{info: info, slots: slots, counter: counter, client: &http.Client{Timeout: 5 * time.Second}}
}

// Run blocks, issuing one heartbeat immediately and then every 5s, until
// ctx is cancelled. Failures are logged and retried on the next interval
// (§4.13).
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.beat(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.beat(ctx)
		}
	}
}

func (w *Worker) beat(ctx context.Context) {
	current := 0
	if w.counter != nil {
		current = w.counter.Count()
	}

	u := fmt.Sprintf("%s/add.php?sn=%s&port=%d&crt=%d&mx=%d&map=%s",
		w.info.URL,
		url.QueryEscape(sanitizeName(w.info.Name)),
		w.info.Port,
		current,
		w.slots,
		url.QueryEscape(w.info.Map),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		slog.Warn("heartbeat request build failed", "error", err)
		return
	}
	resp, err := w.client.Do(req)
	if err != nil {
		slog.Warn("heartbeat request failed", "error", err)
		return
	}
	_ = resp.Body.Close()
}

// sanitizeName keeps only printable ASCII, nulling control bytes (§4.13).
func sanitizeName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x20 || c == 0x7f {
			out[i] = 0
			continue
		}
		out[i] = c
	}
	return string(out)
}
