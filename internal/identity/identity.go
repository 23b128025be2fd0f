// Package identity verifies bearer tokens issued by the campus identity provider.
package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Shivanand-hulikatti/campus-events/internal/model"
)

// claims is the token layout shared with the identity provider.
type claims struct {
	jwt.RegisteredClaims
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
}

// JWTProvider authenticates HS256 bearer tokens.
type JWTProvider struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTProvider constructs a JWTProvider. now may be nil.
func NewJWTProvider(secret, issuer string, now func() time.Time) *JWTProvider {
	if now == nil {
		now = time.Now
	}
	return &JWTProvider{secret: []byte(secret), issuer: issuer, now: now}
}

// Authenticate verifies token and returns the identity it asserts.
func (p *JWTProvider) Authenticate(token string) (model.Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.Actor{}, fmt.Errorf("missing token: %w", model.ErrUnauthorized)
	}

	var c claims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		return model.Actor{}, fmt.Errorf("verify token: %w: %v", model.ErrUnauthorized, err)
	}
	if strings.TrimSpace(c.Subject) == "" {
		return model.Actor{}, fmt.Errorf("token has no subject: %w", model.ErrUnauthorized)
	}

	role := model.Role(strings.ToLower(c.Role))
	if role != model.RoleAdmin {
		role = model.RoleStudent
	}
	return model.Actor{UserID: c.Subject, Email: c.Email, Role: role}, nil
}

// Issue signs a token for actor. The identity provider owns issuance in production;
// this is used by tests and local tooling.
func (p *JWTProvider) Issue(actor model.Actor, ttl time.Duration) (string, error) {
	now := p.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:  string(actor.Role),
		Email: actor.Email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
