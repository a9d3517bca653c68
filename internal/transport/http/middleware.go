package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/lounge-server/internal/auth"
	"github.com/vovakirdan/lounge-server/internal/core"
	"github.com/vovakirdan/lounge-server/internal/store"
)

// ContextKeyIdentity is the context key for the authenticated identity name.
const ContextKeyIdentity = "identity"

// AuthMiddleware creates a middleware that validates JWT tokens.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug().Msg("missing authorization header")
			respondError(c, http.StatusUnauthorized, core.KindAuthenticationRequired, "missing authorization header")
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			logger.Debug().Msg("invalid authorization header format")
			respondError(c, http.StatusUnauthorized, core.KindAuthenticationRequired, "invalid authorization header format")
			return
		}

		name, err := authService.IdentityFromToken(parts[1])
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			respondError(c, http.StatusUnauthorized, core.KindAuthenticationRequired, "invalid token")
			return
		}

		c.Set(ContextKeyIdentity, name)
		c.Next()
	}
}

// RequireOwner rejects callers whose stored identity lacks the owner badge.
// It must run after AuthMiddleware.
func RequireOwner(identities store.IdentityStore, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, err := identities.GetIdentity(c.Request.Context(), c.GetString(ContextKeyIdentity))
		switch {
		case errors.Is(err, store.ErrNotFound):
			respondError(c, http.StatusUnauthorized, core.KindAuthenticationRequired, "identity not found")
			return
		case err != nil:
			logger.Error().Err(err).Msg("owner check failed")
			respondError(c, http.StatusServiceUnavailable, core.KindUnavailable, "identity store unavailable")
			return
		case !ident.IsOwner():
			respondError(c, http.StatusForbidden, core.KindNotAuthorized, "only the owner can moderate")
			return
		}
		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}
