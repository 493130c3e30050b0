package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopfloor/shopfloor/internal/api/response"
	"github.com/shopfloor/shopfloor/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyPrefix marks a bearer token as an API key rather than a JWT.
	APIKeyPrefix = "sf_"
	keyPrefixLen = 8
)

// IdentityStore is the slice of the store the auth middleware reads.
type IdentityStore interface {
	GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
}

// Auth resolves the caller's Identity from a bearer JWT or API key.
type Auth struct {
	store     IdentityStore
	jwtSecret []byte
}

// NewAuth creates a new Auth middleware. An empty secret disables JWTs.
func NewAuth(s IdentityStore, jwtSecret string) *Auth {
	return &Auth{store: s, jwtSecret: []byte(jwtSecret)}
}

type claims struct {
	jwt.RegisteredClaims
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Authenticate validates the Bearer token and sets the caller's Identity in
// the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		var (
			ident  models.Identity
			source string
			err    error
		)
		if strings.HasPrefix(token, APIKeyPrefix) {
			ident, err = a.identityFromAPIKey(r.Context(), token)
			source = "api_key"
		} else {
			ident, err = a.identityFromJWT(token)
			source = "jwt"
		}
		if errors.Is(err, errLookup) {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate credentials", nil)
			return
		}
		if err != nil {
			slog.Debug("authentication failed", "source", source, "error", err)
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid credentials", nil)
			return
		}

		ctx := SetIdentity(r.Context(), ident)
		ctx = setAuthSource(ctx, source)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var errLookup = errors.New("credential lookup failed")

func (a *Auth) identityFromJWT(token string) (models.Identity, error) {
	if len(a.jwtSecret) == 0 {
		return models.Identity{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	c := &claims{}
	if _, err := parser.ParseWithClaims(token, c, func(*jwt.Token) (any, error) {
		return a.jwtSecret, nil
	}); err != nil {
		return models.Identity{}, err
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return models.Identity{}, fmt.Errorf("subject claim: %w", err)
	}
	if c.Role == "" {
		return models.Identity{}, errors.New("role claim required")
	}
	return models.Identity{ID: id, Role: models.Role(c.Role), Name: c.Name, Email: c.Email}, nil
}

func (a *Auth) identityFromAPIKey(ctx context.Context, rawKey string) (models.Identity, error) {
	if len(rawKey) < keyPrefixLen {
		return models.Identity{}, errors.New("api key too short")
	}
	keys, err := a.store.GetAPIKeyByPrefix(ctx, rawKey[:keyPrefixLen])
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", errLookup, err)
	}

	for _, key := range keys {
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(rawKey)) != nil {
			continue
		}
		ident, err := a.store.GetIdentity(ctx, key.IdentityID)
		if err != nil {
			return models.Identity{}, fmt.Errorf("%w: %v", errLookup, err)
		}
		// Update last_used_at async
		go a.store.UpdateAPIKeyLastUsed(context.WithoutCancel(ctx), key.ID)
		return *ident, nil
	}
	return models.Identity{}, errors.New("no matching api key")
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
