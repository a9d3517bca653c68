package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/lounge-server/internal/auth"
	"github.com/vovakirdan/lounge-server/internal/core"
	"github.com/vovakirdan/lounge-server/internal/i18n"
	"github.com/vovakirdan/lounge-server/internal/proto"
	"github.com/vovakirdan/lounge-server/internal/store"
)

// APIHandlers provides HTTP handlers for REST API endpoints.
type APIHandlers struct {
	authService *auth.Service
	hub         *core.Hub
	identities  store.IdentityStore
	log         *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(authService *auth.Service, hub *core.Hub, identities store.IdentityStore, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		authService: authService,
		hub:         hub,
		identities:  identities,
		log:         logger,
	}
}

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse represents the authentication response body.
type AuthResponse struct {
	Token        string   `json:"token"`
	IdentityName string   `json:"identityName"`
	Badges       []string `json:"badges"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// ProfileResponse describes the caller's own identity.
type ProfileResponse struct {
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Badges       []string  `json:"badges"`
	Muted        bool      `json:"muted"`
	CreatedAt    time.Time `json:"createdAt"`
	LastLogin    time.Time `json:"lastLogin"`
	MessageCount int64     `json:"messageCount"`
}

// SanctionResponse is one ban or mute entry.
type SanctionResponse struct {
	Name string    `json:"name"`
	By   string    `json:"by"`
	At   time.Time `json:"at"`
}

// Register handles identity registration.
// POST /api/register
func (h *APIHandlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid register request")
		respondError(c, http.StatusBadRequest, core.KindValidation, "invalid request body")
		return
	}

	token, ident, err := h.authService.Register(c.Request.Context(), req.Name, req.Email, req.Password, c.ClientIP())
	if err != nil {
		h.authError(c, req.Name, err)
		return
	}

	h.log.Info().Str("identity", ident.Name).Strs("badges", ident.Badges).Msg("identity registered")
	c.JSON(http.StatusCreated, AuthResponse{Token: token, IdentityName: ident.Name, Badges: ident.Badges})
}

// Login handles identity login.
// POST /api/login
func (h *APIHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		respondError(c, http.StatusBadRequest, core.KindValidation, "invalid request body")
		return
	}

	token, ident, err := h.authService.Login(c.Request.Context(), req.Name, req.Password, c.ClientIP())
	if err != nil {
		h.authError(c, req.Name, err)
		return
	}

	h.log.Info().Str("identity", ident.Name).Msg("identity logged in")
	c.JSON(http.StatusOK, AuthResponse{Token: token, IdentityName: ident.Name, Badges: ident.Badges})
}

func (h *APIHandlers) authError(c *gin.Context, name string, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrInvalidPassword):
		respondError(c, http.StatusBadRequest, core.KindValidation, err.Error())
	case errors.Is(err, auth.ErrUserExists), errors.Is(err, auth.ErrEmailExists):
		respondError(c, http.StatusConflict, core.KindConflict, err.Error())
	case errors.Is(err, auth.ErrBanned):
		respondError(c, http.StatusForbidden, core.KindBanned, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, core.KindAuthenticationRequired, err.Error())
	default:
		h.log.Error().Err(err).Str("identity", name).Msg("auth request failed")
		respondError(c, http.StatusInternalServerError, core.KindUnavailable, "internal server error")
	}
}

// Presence lists joined connections.
// GET /api/presence
func (h *APIHandlers) Presence(c *gin.Context) {
	c.JSON(http.StatusOK, proto.EventPresence{Entries: presenceEntries(h.hub.Presence())})
}

// History returns recent messages, oldest first.
// GET /api/history?limit=n
func (h *APIHandlers) History(c *gin.Context) {
	limit := core.ReplaySize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > core.HistoryCapacity {
			respondError(c, http.StatusBadRequest, core.KindValidation, "invalid limit")
			return
		}
		limit = n
	}

	msgs := h.hub.Recent(limit)
	out := make([]proto.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, chatMessage(m))
	}
	c.JSON(http.StatusOK, proto.EventHistory{Messages: out})
}

// Me returns the caller's identity.
// GET /api/me
func (h *APIHandlers) Me(c *gin.Context) {
	ident, err := h.identities.GetIdentity(c.Request.Context(), c.GetString(ContextKeyIdentity))
	if errors.Is(err, store.ErrNotFound) {
		respondError(c, http.StatusNotFound, core.KindNotFound, "identity not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load identity")
		respondError(c, http.StatusServiceUnavailable, core.KindUnavailable, "identity store unavailable")
		return
	}

	c.JSON(http.StatusOK, ProfileResponse{
		Name:         ident.Name,
		Email:        ident.Email,
		Badges:       nonNil(ident.Badges),
		Muted:        ident.Muted,
		CreatedAt:    ident.CreatedAt,
		LastLogin:    ident.LastLogin,
		MessageCount: ident.MessageCount,
	})
}

// Bans lists banned names. Owner only.
// GET /api/moderation/bans
func (h *APIHandlers) Bans(c *gin.Context) {
	h.sanctions(c, h.identities.ListBans)
}

// Mutes lists muted names. Owner only.
// GET /api/moderation/mutes
func (h *APIHandlers) Mutes(c *gin.Context) {
	h.sanctions(c, h.identities.ListMutes)
}

func (h *APIHandlers) sanctions(c *gin.Context, list func(ctx context.Context) ([]store.Sanction, error)) {
	entries, err := list(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list sanctions")
		respondError(c, http.StatusServiceUnavailable, core.KindUnavailable, "identity store unavailable")
		return
	}
	out := make([]SanctionResponse, 0, len(entries))
	for _, s := range entries {
		out = append(out, SanctionResponse{Name: s.Name, By: s.By, At: s.At})
	}
	c.JSON(http.StatusOK, out)
}

// respondError writes a localized error body.
func respondError(c *gin.Context, status int, kind core.ErrorKind, msg string) {
	lang := i18n.Match(c.Query("lang"), c.GetHeader("Accept-Language"))
	c.AbortWithStatusJSON(status, ErrorResponse{Error: i18n.Translate(lang, msg), Kind: string(kind)})
}

func healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
