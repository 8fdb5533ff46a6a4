// auth.go verifies bearer tokens issued by the platform identity provider and
// places the actor identity and permission scopes in the request context.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Recovery → RequestID → Metrics → Security → RateLimit → Auth → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any
// cryptographic work. Auth populates the actor and scopes; scope checks read
// from that context.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stockledger/stockledger/internal/auth"
	"github.com/stockledger/stockledger/internal/db/models"
)

// gin.Context keys populated by AuthMiddleware.
const (
	ClaimsKey = "claims"
	ActorKey  = "actor"
	UserIDKey = "user_id"
	ScopesKey = "scopes"
)

// AuthMiddleware validates the bearer token and stores the verified claims,
// actor, and scopes in the request context. Requests without a valid token are
// rejected with 401.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Missing authorization header",
			})
			return
		}

		claims, err := auth.ParseToken(token, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Invalid or expired token",
			})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(ActorKey, claims.Actor())
		c.Set(UserIDKey, claims.UserID)
		c.Set(ScopesKey, claims.Scopes)

		c.Next()
	}
}

// RequireScope rejects requests whose token does not carry the given
// permission scope. Must be registered after AuthMiddleware.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(ClaimsKey)
		claims, ok := value.(*auth.Claims)
		if !exists || !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Authentication required",
			})
			return
		}

		if !claims.HasScope(scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"message": "Insufficient permissions",
			})
			return
		}

		c.Next()
	}
}

// ActorFromContext returns the verified actor identity placed in the context
// by AuthMiddleware, or a zero actor when the request is unauthenticated.
func ActorFromContext(c *gin.Context) models.Actor {
	if value, exists := c.Get(ActorKey); exists {
		if actor, ok := value.(models.Actor); ok {
			return actor
		}
	}
	return models.Actor{}
}

// RequestContextFrom captures the request metadata recorded alongside audit
// entries.
func RequestContextFrom(c *gin.Context) models.RequestContext {
	ip := c.ClientIP()
	userAgent := c.Request.UserAgent()
	method := c.Request.Method
	url := c.Request.URL.String()

	rc := models.RequestContext{}
	if ip != "" {
		rc.IPAddress = &ip
	}
	if userAgent != "" {
		rc.UserAgent = &userAgent
	}
	if method != "" {
		rc.RequestMethod = &method
	}
	if url != "" {
		rc.RequestURL = &url
	}
	return rc
}
