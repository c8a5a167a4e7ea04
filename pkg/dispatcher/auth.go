package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/morezero/beanserver/pkg/token"
)

// ErrDenied is returned by an Authenticator that rejects the credentials.
var ErrDenied = errors.New("authentication denied")

// Authenticator verifies a principal and returns its identity token.
type Authenticator interface {
	Authenticate(ctx context.Context, principal, credential string) (identity string, err error)
}

// AllowAll grants every request.
type AllowAll struct{}

func (AllowAll) Authenticate(context.Context, string, string) (string, error) {
	return token.New()
}

// StaticAuthenticator checks credentials against bcrypt hashes.
type StaticAuthenticator struct {
	hashes map[string][]byte
}

// NewStaticAuthenticator builds an authenticator from principal to bcrypt hash.
func NewStaticAuthenticator(users map[string]string) (*StaticAuthenticator, error) {
	hashes := make(map[string][]byte, len(users))
	for principal, hash := range users {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("dispatcher:auth - %s: invalid bcrypt hash: %w", principal, err)
		}
		hashes[principal] = []byte(hash)
	}
	return &StaticAuthenticator{hashes: hashes}, nil
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, principal, credential string) (string, error) {
	hash, ok := a.hashes[principal]
	if !ok {
		return "", fmt.Errorf("dispatcher:auth - unknown principal %q: %w", principal, ErrDenied)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(credential)); err != nil {
		return "", fmt.Errorf("dispatcher:auth - bad credential for %q: %w", principal, ErrDenied)
	}
	return token.New()
}

// ParseUsers parses "alice:$2a$...,bob:$2a$..." into principal to hash.
func ParseUsers(s string) (map[string]string, error) {
	users := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		principal, hash, ok := strings.Cut(pair, ":")
		if !ok || principal == "" || hash == "" {
			return nil, fmt.Errorf("dispatcher:auth - malformed user entry %q", pair)
		}
		if _, dup := users[principal]; dup {
			return nil, fmt.Errorf("dispatcher:auth - duplicate user %q", principal)
		}
		users[principal] = hash
	}
	return users, nil
}
