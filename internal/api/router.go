package api

import (
	"io/fs"
	"net/http"
)

// registerAPIRoutes registers all API endpoints on the given mux
func registerAPIRoutes(mux *http.ServeMux, h *Handler) {
	// Inputs and encoders
	mux.HandleFunc("GET /api/browse", h.Browse)
	mux.HandleFunc("GET /api/encoders", h.Encoders)

	// Job control; the literal routes win over {id}
	mux.HandleFunc("POST /api/jobs", h.CreateJob)
	mux.HandleFunc("GET /api/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/jobs/stream", h.JobStream)
	mux.HandleFunc("GET /api/jobs/current", h.CurrentJob)
	mux.HandleFunc("DELETE /api/jobs/current", h.CancelCurrent)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", h.DeleteJob)

	// Configuration
	mux.HandleFunc("GET /api/config", h.GetConfig)
	mux.HandleFunc("PUT /api/config", h.UpdateConfig)

	// Misc
	mux.HandleFunc("GET /api/stats", h.Stats)
	mux.HandleFunc("POST /api/cache/clear", h.ClearCache)
}

// NewRouter creates a new HTTP router with all API endpoints. staticFS may
// be nil, in which case only the API is served.
func NewRouter(h *Handler, staticFS fs.FS) *http.ServeMux {
	mux := http.NewServeMux()

	registerAPIRoutes(mux, h)

	if staticFS == nil {
		mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("trimsilence API - No UI available"))
		})
		return mux
	}

	// Serve index.html at root
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		content, err := fs.ReadFile(staticFS, "index.html")
		if err != nil {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write(content)
	})

	// Serve favicon
	mux.HandleFunc("GET /favicon.png", func(w http.ResponseWriter, r *http.Request) {
		content, err := fs.ReadFile(staticFS, "favicon.png")
		if err != nil {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Write(content)
	})

	return mux
}
