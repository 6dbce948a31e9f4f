package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"renderhub/internal/httpapi/handlers"
	"renderhub/internal/httpkit"
	"renderhub/internal/pkg/logger"
	"renderhub/internal/pkg/middleware"
)

type Deps struct {
	Handlers handlers.Deps

	AllowedOrigins []string
	// RequestTimeout bounds every request context; previews need room for
	// the 60s renderer call.
	RequestTimeout time.Duration
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	h := handlers.New(d.Handlers)
	log := h.Log()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: defaultOrigins(d.AllowedOrigins),
	}))
	if d.RequestTimeout > 0 {
		r.Use(middleware.Timeout(d.RequestTimeout))
	}

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	// ---- THUMBNAILS ----
	r.Post("/thumbnails", wrap(log, h.PostThumbnail))
	r.Get("/thumbnails/{kind}/{id}/{type}", wrap(log, h.GetThumbnail))

	// ---- PREVIEWS ----
	r.Post("/previews", wrap(log, h.PostPreview))

	return r
}

func wrap(log *logger.Logger, fn middleware.ErrorHandlerFunc) http.HandlerFunc {
	return middleware.WrapHandler(log, fn)
}

func defaultOrigins(in []string) []string {
	out := httpkit.NormalizeList(in)
	if len(out) == 0 {
		return []string{"http://localhost:5173", "http://localhost:8081"}
	}
	return out
}
