// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// ReadinessReporter is implemented by the mutation event consumer.
type ReadinessReporter interface {
	Readiness() (ready bool, partitions []int32)
}

// Check is one named readiness probe; a nil error means ready.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type notReady string

func (e notReady) Error() string { return string(e) }

// ConsumerCheck fails until the consumer owns at least one partition.
func ConsumerCheck(rr ReadinessReporter) Check {
	return Check{Name: "events", Fn: func(context.Context) error {
		if ok, _ := rr.Readiness(); !ok {
			return notReady("no partitions assigned")
		}
		return nil
	}}
}

// Readiness runs every check with a short deadline and answers 503 if any fails.
func Readiness(checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks,omitempty"`
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		out := resp{Status: "ready", Checks: make(map[string]string, len(checks))}
		for _, c := range checks {
			if err := c.Fn(ctx); err != nil {
				out.Status = "not_ready"
				out.Checks[c.Name] = err.Error()
				continue
			}
			out.Checks[c.Name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		if out.Status != "ready" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
