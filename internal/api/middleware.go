package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rongwang/land-rental-server/internal/models"
)

const actorKey = "actor"

// AuthMiddleware returns a Gin middleware for authentication.
// The bearer token's sub claim becomes the actor id and its role claim the role.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get the JWT token from the Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWith(c, http.StatusUnauthorized, "UNAUTHORIZED")
			return
		}

		// Check if the Authorization header starts with "Bearer "
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortWith(c, http.StatusUnauthorized, "UNAUTHORIZED")
			return
		}

		// Parse the JWT token
		jwtSecret := c.MustGet("jwtSecret").([]byte)
		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			// Validate the signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return jwtSecret, nil
		})
		if err != nil || !token.Valid {
			abortWith(c, http.StatusUnauthorized, "UNAUTHORIZED")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abortWith(c, http.StatusUnauthorized, "UNAUTHORIZED")
			return
		}

		userID, ok := claims["sub"].(string)
		if !ok || userID == "" {
			abortWith(c, http.StatusUnauthorized, "UNAUTHORIZED")
			return
		}

		role := models.RoleUser
		if r, _ := claims["role"].(string); models.Role(r) == models.RoleAdmin {
			role = models.RoleAdmin
		}

		c.Set(actorKey, models.Actor{ID: userID, Role: role})
		c.Next()
	}
}

func actorFrom(c *gin.Context) models.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(models.Actor); ok {
			return actor
		}
	}
	return models.Actor{}
}

// CSRFVerifier decides whether a state-changing request carries a valid token
type CSRFVerifier interface {
	Verify(r *http.Request) bool
}

// DoubleSubmitVerifier compares the csrf cookie with the header or form field
type DoubleSubmitVerifier struct {
	CookieName string
	HeaderName string
	FieldName  string
}

// NewDoubleSubmitVerifier uses the csrf_token cookie, X-CSRF-Token header and csrf_token field
func NewDoubleSubmitVerifier() *DoubleSubmitVerifier {
	return &DoubleSubmitVerifier{CookieName: "csrf_token", HeaderName: "X-CSRF-Token", FieldName: "csrf_token"}
}

func (v *DoubleSubmitVerifier) Verify(r *http.Request) bool {
	cookie, err := r.Cookie(v.CookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	submitted := r.Header.Get(v.HeaderName)
	if submitted == "" {
		submitted = r.PostFormValue(v.FieldName)
	}
	return submitted != "" && subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(submitted)) == 1
}

// CSRFMiddleware checks unsafe methods with verifier; a nil verifier disables it
func CSRFMiddleware(verifier CSRFVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			c.Next()
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		if !verifier.Verify(c.Request) {
			abortWith(c, http.StatusForbidden, "CSRF")
			return
		}
		c.Next()
	}
}

// TimeoutMiddleware puts a deadline on the request context; row-lock waits
// and queries observe it
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestLogger logs one line per request
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.InfoContext(c.Request.Context(), "[http] request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"actor_id", actorFrom(c).ID,
		)
	}
}
