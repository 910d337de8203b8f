package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/channelsync/orders-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// newOpsRouter serves liveness, readiness and prometheus scrapes for the
// worker. Readiness pings every dependency the consumer needs to make
// progress.
func newOpsRouter(logg *logger.Logger, deps map[string]pinger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"live"}`))
	})

	r.Get("/healthz/ready", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				logg.Error(ctx, "readiness ping failed: "+name, err)
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable","dependency":"` + name + `"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
