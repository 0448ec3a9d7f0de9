// Package auth resolves API bearer tokens to principals with kpm scopes.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/zeebo/blake3"
)

// Scopes understood by the control surface. kpm:rw implies kpm:ro.
const (
	ScopeRead  = "kpm:ro"
	ScopeWrite = "kpm:rw"
	ScopeAll   = "*"
)

// ValidScope reports whether s is a scope the API can grant.
func ValidScope(s string) bool {
	switch strings.TrimSpace(s) {
	case ScopeRead, ScopeWrite, ScopeAll:
		return true
	}
	return false
}

// TokenConfig is a bearer token with a set of scopes.
type TokenConfig struct {
	Token  string
	Scopes []string
}

// Principal is an authenticated caller. ID names the credential for logs and
// never contains the token itself.
type Principal struct {
	ID     string
	Scopes map[string]struct{}
}

// Allows reports whether p holds any of required. "*" allows everything, and
// an empty required list is always allowed.
func (p Principal) Allows(required ...string) bool {
	if len(required) == 0 {
		return true
	}
	if _, ok := p.Scopes[ScopeAll]; ok {
		return true
	}
	for _, s := range required {
		if _, ok := p.Scopes[s]; ok {
			return true
		}
	}
	return false
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// ExtractBearerToken reads the token from an "Authorization: Bearer" header.
// The scheme name is case-insensitive.
func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing Authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("invalid Authorization header format")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// Keyring resolves presented tokens. Tokens are kept only as BLAKE3
// digests, so comparison cost does not depend on token length and a
// dumped Keyring does not reveal them.
type Keyring struct {
	entries []keyEntry
}

type keyEntry struct {
	digest    [32]byte
	principal Principal
}

// NewKeyring builds a keyring from the full-access apiKey and the scoped
// tokens. Empty credentials are skipped.
func NewKeyring(apiKey string, tokens []TokenConfig) *Keyring {
	k := &Keyring{}
	if apiKey != "" {
		k.entries = append(k.entries, keyEntry{
			digest:    blake3.Sum256([]byte(apiKey)),
			principal: Principal{ID: "api_key", Scopes: map[string]struct{}{ScopeAll: {}}},
		})
	}
	for i, t := range tokens {
		if t.Token == "" {
			continue
		}
		k.entries = append(k.entries, keyEntry{
			digest:    blake3.Sum256([]byte(t.Token)),
			principal: Principal{ID: fmt.Sprintf("token[%d]", i), Scopes: scopeSet(t.Scopes)},
		})
	}
	return k
}

// Len is the number of usable credentials.
func (k *Keyring) Len() int { return len(k.entries) }

// Lookup returns the principal for token. Every entry is compared, so the
// time taken does not reveal which one matched.
func (k *Keyring) Lookup(token string) (Principal, bool) {
	if token == "" {
		return Principal{}, false
	}
	sum := blake3.Sum256([]byte(token))

	var (
		found Principal
		hit   bool
	)
	for _, e := range k.entries {
		if subtle.ConstantTimeCompare(sum[:], e.digest[:]) == 1 && !hit {
			found, hit = e.principal, true
		}
	}
	return found, hit
}

func scopeSet(scopes []string) map[string]struct{} {
	out := make(map[string]struct{}, len(scopes)+1)
	for _, s := range scopes {
		if s = strings.TrimSpace(s); s != "" {
			out[s] = struct{}{}
		}
	}
	if _, ok := out[ScopeWrite]; ok {
		out[ScopeRead] = struct{}{}
	}
	return out
}
