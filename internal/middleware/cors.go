package middleware

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/diewo77/ejaar/httpx"
)

// CORS lets the front-end origins call the API with the session cookie.
// An empty origin list disables cross-origin access.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		// rs/cors treats an empty list as "*"
		return func(next http.Handler) http.Handler { return next }
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Accept", "Accept-Language", httpx.RequestIDHeader},
		ExposedHeaders:   []string{httpx.RequestIDHeader, "Content-Language"},
		AllowCredentials: true,
		MaxAge:           600,
	})
	return c.Handler
}
