package autosubmit

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ReceiptClaims are the claims carried by a signed admission receipt.
// The receipt proves to the session layer that this engine admitted the
// named user at the stated time; it carries nothing about the credential.
type ReceiptClaims struct {
	jwt.RegisteredClaims
}

// receiptIssuer mints HS256 admission receipts.
type receiptIssuer struct {
	key    []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func newReceiptIssuer(cfg ReceiptConfig) *receiptIssuer {
	if !cfg.Enabled {
		return nil
	}
	return &receiptIssuer{
		key:    cfg.Key,
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    time.Now,
	}
}

func (r *receiptIssuer) issue(username string) (string, error) {
	if r == nil {
		return "", nil
	}
	now := r.now()
	claims := ReceiptClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    r.issuer,
			Subject:   username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(r.key)
	if err != nil {
		return "", ErrReceiptUnavailable
	}
	return signed, nil
}

// ParseReceipt verifies a receipt minted by an engine configured with the
// same key and returns its claims.
func ParseReceipt(key []byte, token string) (*ReceiptClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &ReceiptClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return key, nil
	}, jwt.WithLeeway(30*time.Second))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*ReceiptClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid receipt")
	}
	return claims, nil
}
