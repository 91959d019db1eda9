// Package httputil writes ops API responses.
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"
)

// WriteJSON writes data as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// WriteYAML writes data as YAML with the given status code.
func WriteYAML(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(status)
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(data); err != nil {
		slog.Error("failed to encode YAML response", "error", err)
	}
}

// Write picks YAML when the request asks for it through ?format=yaml or an
// Accept header naming yaml, and JSON otherwise.
func Write(w http.ResponseWriter, r *http.Request, status int, data any) {
	if WantsYAML(r) {
		WriteYAML(w, status, data)
		return
	}
	WriteJSON(w, status, data)
}

// WantsYAML reports whether r asked for a YAML body.
func WantsYAML(r *http.Request) bool {
	if r == nil {
		return false
	}
	if f := r.URL.Query().Get("format"); f != "" {
		return strings.EqualFold(f, "yaml")
	}
	return strings.Contains(r.Header.Get("Accept"), "yaml")
}

// WriteError writes a JSON error body.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}
