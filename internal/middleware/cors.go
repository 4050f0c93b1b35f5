package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"

	"rental-backend/internal/config"
)

// NewCORS only matters for the app's web views and the manager dashboard.
// Gateways call the return and callback routes directly, so they never send
// a preflight. Auth is a bearer header, so credentials stay off.
func NewCORS(cfg *config.Config) func(http.Handler) http.Handler {
	origins := make([]string, 0, len(cfg.Server.CorsAllowedOrigins))
	for _, o := range cfg.Server.CorsAllowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   cfg.Server.CorsAllowedMethods,
		AllowedHeaders:   cfg.Server.CorsAllowedHeaders,
		AllowCredentials: false,
		MaxAge:           600,
	})
	return c.Handler
}
