package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vovakirdan/lounge-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when name/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register a taken name.
	ErrUserExists = errors.New("name already taken")
	// ErrEmailExists is returned when the email is already registered.
	ErrEmailExists = errors.New("email already registered")
	// ErrInvalidUsername is returned when the name doesn't meet constraints.
	ErrInvalidUsername = errors.New("name must be 3 to 20 characters")
	// ErrInvalidEmail is returned when the email does not parse.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidPassword is returned when the password doesn't meet constraints.
	ErrInvalidPassword = errors.New("password must be at least 6 characters")
	// ErrBanned is returned for banned or deleted names.
	ErrBanned = errors.New("name is banned")
)

const (
	minNameLen     = 3
	maxNameLen     = 20
	minPasswordLen = 6
)

// Service provides registration, login and token checks.
type Service struct {
	store     store.IdentityStore
	jwtConfig *JWTConfig
	now       func() time.Time
}

// NewService creates a new authentication service.
func NewService(identities store.IdentityStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     identities,
		jwtConfig: jwtConfig,
		now:       time.Now,
	}
}

// Register creates an identity with a hashed password and returns a JWT token.
// The first identity ever registered becomes the owner.
func (s *Service) Register(ctx context.Context, name, email, password, address string) (string, *store.Identity, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < minNameLen || n > maxNameLen {
		return "", nil, ErrInvalidUsername
	}
	email = strings.TrimSpace(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return "", nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLen {
		return "", nil, ErrInvalidPassword
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return "", nil, err
	}

	now := s.now()
	ident, err := s.store.CreateIdentity(ctx, store.NewIdentity{
		Name:         name,
		Email:        email,
		PasswordHash: hashedPassword,
		Address:      address,
		CreatedAt:    now,
	})
	switch {
	case errors.Is(err, store.ErrNameTaken):
		return "", nil, ErrUserExists
	case errors.Is(err, store.ErrEmailTaken):
		return "", nil, ErrEmailExists
	case errors.Is(err, store.ErrBanned):
		return "", nil, ErrBanned
	case err != nil:
		return "", nil, fmt.Errorf("create identity: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, ident.Name, now)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	return token, ident, nil
}

// Login validates credentials, records the login and returns a JWT token.
func (s *Service) Login(ctx context.Context, name, password, address string) (string, *store.Identity, error) {
	name = strings.TrimSpace(name)
	ident, err := s.store.GetIdentity(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, fmt.Errorf("get identity: %w", err)
	}

	if errPwd := ComparePassword(ident.PasswordHash, password); errPwd != nil {
		return "", nil, ErrInvalidCredentials
	}
	if ident.Banned {
		return "", nil, ErrBanned
	}

	now := s.now()
	if err := s.store.RecordLogin(ctx, ident.Name, address, now); err != nil {
		return "", nil, fmt.Errorf("record login: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, ident.Name, now)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	return token, ident, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// IdentityFromToken returns the identity name a valid token was issued for.
func (s *Service) IdentityFromToken(tokenString string) (string, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
