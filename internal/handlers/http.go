// internal/handlers/http.go
package handlers

import (
	"encoding/json"
	"net/http"
)

// ListLobbiesHandler returns the public lobby discovery listing: waiting,
// non-full lobbies with visibility = public. Joinability by code is not
// affected by visibility.
func ListLobbiesHandler(gs *GatewayServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		listings := gs.Registry.ListPublic()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"lobbies": listings,
		})
	}
}

// HealthzHandler is a liveness probe.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}
}
