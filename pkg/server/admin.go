package server

import (
	"encoding/json"
	"net/http"

	"github.com/getmockd/stompd/pkg/metrics"
	"github.com/getmockd/stompd/pkg/registry"
)

// Health is the /healthz response body.
type Health struct {
	Status      string   `json:"status"`
	Connections int      `json:"connections"`
	Channels    []string `json:"channels"`
}

// AdminHandler serves /metrics from m and /healthz from reg. A nil m selects
// the default metrics registry.
func AdminHandler(reg *registry.Registry[string], m *metrics.Registry) http.Handler {
	if m == nil {
		m = metrics.Init()
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Health{
			Status:      "ok",
			Connections: reg.Connections(),
			Channels:    reg.Channels(),
		})
	})
	return mux
}
