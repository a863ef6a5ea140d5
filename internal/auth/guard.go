// Package auth guards administrative endpoints with bearer tokens and a
// casbin role model.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"golang.org/x/crypto/bcrypt"
)

// Roles and the objects/actions they are granted.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"

	ObjRates = "rates"

	ActRead    = "read"
	ActRefresh = "refresh"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoTokens     = errors.New("no api tokens configured")
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (r.obj == p.obj || p.obj == "*") && (r.act == p.act || p.act == "*")
`

// Token is a configured API token. Only the bcrypt hash of the secret is
// kept.
type Token struct {
	Name string
	Role string
	hash []byte
}

// ParseToken parses "name:role:bcrypt-hash".
func ParseToken(spec string) (Token, error) {
	parts := strings.SplitN(strings.TrimSpace(spec), ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Token{}, fmt.Errorf("token %q: want name:role:bcrypt-hash", redact(spec))
	}
	if _, err := bcrypt.Cost([]byte(parts[2])); err != nil {
		return Token{}, fmt.Errorf("token %q: %w", parts[0], err)
	}
	return Token{Name: parts[0], Role: parts[1], hash: []byte(parts[2])}, nil
}

// ParseTokens parses every non-empty spec.
func ParseTokens(specs []string) ([]Token, error) {
	var out []Token
	for _, s := range specs {
		if strings.TrimSpace(s) == "" {
			continue
		}
		t, err := ParseToken(s)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// HashSecret returns the bcrypt hash to put in a token spec.
func HashSecret(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func redact(spec string) string {
	if name, _, ok := strings.Cut(spec, ":"); ok {
		return name + ":…"
	}
	return "…"
}

// Guard authenticates bearer tokens and checks their role permissions.
type Guard struct {
	tokens   []Token
	enforcer *casbin.Enforcer
	logger   *slog.Logger
}

func NewGuard(tokens []Token, logger *slog.Logger) (*Guard, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	policies := [][]string{
		{RoleAdmin, ObjRates, ActRead},
		{RoleAdmin, ObjRates, ActRefresh},
		{RoleViewer, ObjRates, ActRead},
	}
	if _, err := e.AddPolicies(policies); err != nil {
		return nil, fmt.Errorf("add policies: %w", err)
	}
	for _, t := range tokens {
		if _, err := e.AddGroupingPolicy(t.Name, t.Role); err != nil {
			return nil, fmt.Errorf("assign role %s to %s: %w", t.Role, t.Name, err)
		}
	}

	return &Guard{tokens: tokens, enforcer: e, logger: logger.With("component", "auth")}, nil
}

// Authenticate returns the token whose secret matches raw.
func (g *Guard) Authenticate(raw string) (*Token, error) {
	if len(g.tokens) == 0 {
		return nil, ErrNoTokens
	}
	for i := range g.tokens {
		if bcrypt.CompareHashAndPassword(g.tokens[i].hash, []byte(raw)) == nil {
			return &g.tokens[i], nil
		}
	}
	return nil, ErrInvalidToken
}

// Enforce reports whether sub may perform act on obj.
func (g *Guard) Enforce(sub, obj, act string) (bool, error) {
	return g.enforcer.Enforce(sub, obj, act)
}
