package observability

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router exposes /metrics and /healthz for long-running fetch processes.
// The ready func may be nil, in which case /healthz always reports ok.
func Router(ready func() bool) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && !ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// Serve blocks, serving the observability endpoints on addr.
func Serve(addr string, ready func() bool) error {
	return http.ListenAndServe(addr, Router(ready))
}
