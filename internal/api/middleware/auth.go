package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Authorizer is the pass/fail gate consulted before privileged operations.
// How credentials are issued and verified is a collaborator's concern; the
// middleware only needs the boolean answer.
type Authorizer interface {
	Authorize(token string) bool
}

// StaticToken authorizes requests carrying one pre-shared bearer token.
type StaticToken struct {
	token string
}

// NewStaticToken creates a static-token authorizer.
func NewStaticToken(token string) StaticToken {
	return StaticToken{token: token}
}

// Authorize compares in constant time.
func (s StaticToken) Authorize(token string) bool {
	return subtle.ConstantTimeCompare([]byte(s.token), []byte(token)) == 1
}

// Auth creates the authorization middleware. A nil authorizer disables the
// gate entirely.
func Auth(authorizer Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authorizer == nil {
			c.Next()
			return
		}

		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || !authorizer.Authorize(token) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		c.Next()
	}
}
