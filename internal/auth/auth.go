// Package auth provides token-based authorization for destructive
// operations. Anyone may upload and download; replacing or deleting a
// post requires the admin token.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/prn-tf/mediaboard/internal/config"
	"github.com/prn-tf/mediaboard/internal/domain"
)

// Permission identifies a guarded operation.
type Permission string

const (
	// PermReplace guards content replacement.
	PermReplace Permission = "replace"

	// PermDelete guards record deletion.
	PermDelete Permission = "delete"
)

// Authorizer checks whether a request may perform a guarded operation.
type Authorizer struct {
	tokenHash []byte
}

// NewAuthorizer creates an Authorizer from configuration.
// An empty hash disables all guarded operations.
func NewAuthorizer(cfg config.AuthConfig) *Authorizer {
	return &Authorizer{tokenHash: []byte(cfg.AdminTokenHash)}
}

// Enabled reports whether an admin token is configured at all.
func (a *Authorizer) Enabled() bool {
	return len(a.tokenHash) > 0
}

// Authorize checks a presented token against the configured hash.
// Returns domain.ErrPermissionDenied on mismatch or when guarded
// operations are disabled.
func (a *Authorizer) Authorize(token string, _ Permission) error {
	if !a.Enabled() || token == "" {
		return domain.ErrPermissionDenied
	}
	if err := bcrypt.CompareHashAndPassword(a.tokenHash, []byte(token)); err != nil {
		return domain.ErrPermissionDenied
	}
	return nil
}

// TokenFromRequest extracts the admin token from a request. The token
// travels either as a bearer Authorization header or as the "token"
// form field for plain HTML forms.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		const prefix = "Bearer "
		if len(h) > len(prefix) && subtle.ConstantTimeCompare([]byte(h[:len(prefix)]), []byte(prefix)) == 1 {
			return strings.TrimSpace(h[len(prefix):])
		}
	}
	return r.FormValue("token")
}

// HashToken produces a bcrypt hash suitable for the configuration file.
// Used by the admin CLI's hash subcommand.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
