// Package checkin issues and verifies the scannable credentials used for event check-in.
package checkin

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/Shivanand-hulikatti/campus-events/internal/model"
)

// Purpose is the only purpose a check-in credential may carry.
const Purpose = "checkin"

type credentialClaims struct {
	jwt.RegisteredClaims
	EventID string `json:"event_id"`
	Purpose string `json:"purpose"`
}

// Codec signs and verifies check-in credentials. A credential is an HS256 token
// carrying {event_id, purpose, iat, exp}.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec constructs a Codec. A zero ttl means credentials never expire. now may be nil.
func NewCodec(secret string, ttl time.Duration, now func() time.Time) *Codec {
	if now == nil {
		now = time.Now
	}
	return &Codec{secret: []byte(secret), ttl: ttl, now: now}
}

// Encode issues a credential for eventID.
func (c *Codec) Encode(eventID string) (payload string, issuedAt time.Time, err error) {
	issuedAt = c.now().UTC().Truncate(time.Second)
	rc := jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(issuedAt)}
	if c.ttl > 0 {
		rc.ExpiresAt = jwt.NewNumericDate(issuedAt.Add(c.ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, credentialClaims{
		RegisteredClaims: rc,
		EventID:          eventID,
		Purpose:          Purpose,
	})
	payload, err = token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign credential: %w", err)
	}
	return payload, issuedAt, nil
}

// Decode verifies payload and returns the event it was issued for.
func (c *Codec) Decode(payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", fmt.Errorf("empty credential: %w", model.ErrInvalidPayload)
	}

	var cl credentialClaims
	_, err := jwt.ParseWithClaims(payload, &cl, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(c.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrInvalidPayload, err)
	}
	if cl.Purpose != Purpose {
		return "", fmt.Errorf("credential purpose %q: %w", cl.Purpose, model.ErrInvalidPayload)
	}
	if strings.TrimSpace(cl.EventID) == "" {
		return "", fmt.Errorf("credential has no event: %w", model.ErrInvalidPayload)
	}
	return cl.EventID, nil
}

// RenderQR encodes payload as a PNG QR code of size×size pixels.
func RenderQR(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	return png, nil
}

// DataURL wraps a PNG in a data URL suitable for an <img> src attribute.
func DataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
