// Package middleware holds the gin middleware for the HTTP boundary: CORS,
// rate limiting, request IDs, and the authorization gate.
package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS opens the API to browser clients on any origin. The service only
// serves GET, POST, and DELETE, and auth travels in the Authorization header
// rather than cookies, so credentials stay disabled.
func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "Authorization", "Accept", "Origin"},
		ExposeHeaders: []string{RequestIDHeader, "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	})
}
