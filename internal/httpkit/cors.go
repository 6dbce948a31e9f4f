package httpkit

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

type CORSOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAgeSeconds    int
}

// CORS builds a go-chi/cors handler with renderhub defaults filled in.
func CORS(opt CORSOptions) func(http.Handler) http.Handler {
	if len(opt.AllowedMethods) == 0 {
		opt.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(opt.AllowedHeaders) == 0 {
		opt.AllowedHeaders = []string{"Content-Type", "Authorization", "Accept", "X-Request-ID"}
	}
	if len(opt.ExposedHeaders) == 0 {
		opt.ExposedHeaders = []string{"X-Request-ID"}
	}
	if opt.MaxAgeSeconds == 0 {
		opt.MaxAgeSeconds = 600
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   NormalizeList(opt.AllowedOrigins),
		AllowedMethods:   opt.AllowedMethods,
		AllowedHeaders:   opt.AllowedHeaders,
		ExposedHeaders:   opt.ExposedHeaders,
		AllowCredentials: opt.AllowCredentials,
		MaxAge:           opt.MaxAgeSeconds,
	})
}

// NormalizeList trims entries and drops empty ones.
func NormalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
