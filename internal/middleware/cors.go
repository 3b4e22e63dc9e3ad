package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows the configured origins; a "*" entry allows any origin
// without credentials.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition", RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}

	allowlist := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			return cors.New(cfg)
		}
		allowlist[origin] = struct{}{}
	}

	cfg.AllowCredentials = true
	cfg.AllowOriginFunc = func(origin string) bool {
		_, ok := allowlist[origin]
		return ok
	}
	return cors.New(cfg)
}
