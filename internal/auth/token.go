// Package auth supplies bearer tokens for the export API.
package auth

import (
	"context"
	"errors"
	"os"
	"strings"
)

// EnvToken is the environment variable read by FromEnv.
const EnvToken = "PBI_ACCESS_TOKEN"

// ErrNoToken is returned when no credential is available.
var ErrNoToken = errors.New("auth: no access token; set " + EnvToken + " or pass --token")

// Provider yields a bearer credential.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// Static always returns the same token.
type Static string

// Token returns s.
func (s Static) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// FromEnv reads the token from PBI_ACCESS_TOKEN on every call.
type FromEnv struct{}

// Token returns the value of PBI_ACCESS_TOKEN.
func (FromEnv) Token(ctx context.Context) (string, error) {
	return Static(os.Getenv(EnvToken)).Token(ctx)
}

// Resolve returns a Static provider for an explicit token, else FromEnv.
func Resolve(token string) Provider {
	if token != "" {
		return Static(token)
	}
	return FromEnv{}
}
