package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/resizer/internal/imaging"
)

// defaultMaxMemory is how much of a multipart body is held in memory before
// parts spill to temporary files
const defaultMaxMemory = 32 << 20

type Handler struct {
	settings  imaging.Settings
	maxMemory int64
}

func New() *Handler {
	return &Handler{
		settings:  imaging.DefaultSettings(),
		maxMemory: defaultMaxMemory,
	}
}

// Routes wires every endpoint into a mux wrapped with CORS and request logging
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/process", h.HandleProcess)
	mux.HandleFunc("/crop", h.HandleCrop)
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	return withLogging(withCORS(mux))
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

// --- Middleware ---

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if !strings.HasPrefix(r.URL.Path, "/healthcheck") {
			slog.Info("Request handled",
				"method", r.Method,
				"path", r.URL.Path,
				"duration", time.Since(start))
		}
	})
}

// withCORS lets a browser client on any origin call the API
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
