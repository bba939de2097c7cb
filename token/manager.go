package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with HMAC-SHA256 using a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key.
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrExpired reports a token past its hard expiry.
	ErrExpired = errors.New("token expired")
	// ErrInvalid reports a token that failed signature or claims checks.
	ErrInvalid = errors.New("token invalid")
)

// Config holds the signing material and lifetime policy for a [Manager].
// Keys are supplied explicitly by the caller at construction time; the
// manager never reads ambient process state.
type Config struct {
	SigningMethod SigningMethod
	// PrivateKey is the HMAC secret for hs256, or the Ed25519 private key
	// (raw or PEM) for ed25519.
	PrivateKey []byte
	// PublicKey is the Ed25519 verify key (raw or PEM). Unused for hs256.
	PublicKey []byte

	// MaxAge is the hard expiry applied to every issued token.
	MaxAge time.Duration
	// RenewAfter is the sliding-renewal threshold: a token presented to
	// Renew after this much age is re-signed with a reset age counter.
	RenewAfter time.Duration

	Issuer string
	Leeway time.Duration

	// Clock overrides time.Now, for deterministic tests.
	Clock func() time.Time
}

// SessionClaims is the full claim set of an authenticated principal.
// Consultant fields are populated only for role=consultant.
type SessionClaims struct {
	UserID           string `json:"uid"`
	Role             string `json:"role"`
	UserType         string `json:"utype,omitempty"`
	FirstName        string `json:"fname,omitempty"`
	LastName         string `json:"lname,omitempty"`
	Phone            string `json:"phone,omitempty"`
	Nationality      string `json:"nat,omitempty"`
	City             string `json:"city,omitempty"`
	PreferredProgram string `json:"prog,omitempty"`
	Gender           string `json:"gender,omitempty"`
	Provider         string `json:"provider,omitempty"`
	CompanyName      string `json:"company,omitempty"`
	Designation      string `json:"desig,omitempty"`
	State            string `json:"state,omitempty"`

	// RenewedAt is the age counter reset by sliding renewal.
	RenewedAt *jwt.NumericDate `json:"rat,omitempty"`

	jwt.RegisteredClaims
}

// Manager issues, verifies, and renews session tokens. A Manager is
// immutable after construction and safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if cfg.MaxAge <= 0 {
		return nil, errors.New("token max age must be positive")
	}
	if cfg.RenewAfter <= 0 || cfg.RenewAfter >= cfg.MaxAge {
		return nil, errors.New("renewal threshold must be positive and below max age")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires a signing key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("ed25519 requires a private key")
		}
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	return &Manager{config: cfg}, nil
}

// Issue signs a fresh token for claims. Registered timestamps and the
// renewal counter are set by the manager; any values present on claims are
// overwritten.
func (m *Manager) Issue(claims SessionClaims) (string, error) {
	now := m.config.Clock()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.config.MaxAge))
	claims.RenewedAt = jwt.NewNumericDate(now)
	if m.config.Issuer != "" {
		claims.Issuer = m.config.Issuer
	}

	tok := jwt.NewWithClaims(m.method(), claims)

	key, err := m.signKey()
	if err != nil {
		return "", err
	}
	return tok.SignedString(key)
}

// Parse verifies signature and expiry and returns the embedded claims.
// An expired token returns [ErrExpired]; any other failure returns
// [ErrInvalid].
func (m *Manager) Parse(tokenStr string) (*SessionClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithTimeFunc(m.config.Clock),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey()
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}

	claims, ok := tok.Claims.(*SessionClaims)
	if !ok || !tok.Valid {
		return nil, ErrInvalid
	}

	return claims, nil
}

// Renew implements sliding expiration. A valid token younger than the
// renewal threshold is returned unchanged. One older than the threshold is
// re-signed with the same identity claims, a fresh hard expiry, and a reset
// age counter. A token past its hard expiry returns [ErrExpired].
func (m *Manager) Renew(tokenStr string) (string, *SessionClaims, error) {
	claims, err := m.Parse(tokenStr)
	if err != nil {
		return "", nil, err
	}

	if m.config.Clock().Sub(m.renewedAt(claims)) <= m.config.RenewAfter {
		return tokenStr, claims, nil
	}

	fresh, err := m.Issue(*claims)
	if err != nil {
		return "", nil, err
	}

	renewed, err := m.Parse(fresh)
	if err != nil {
		return "", nil, err
	}
	return fresh, renewed, nil
}

func (m *Manager) renewedAt(claims *SessionClaims) time.Time {
	if claims.RenewedAt != nil {
		return claims.RenewedAt.Time
	}
	if claims.IssuedAt != nil {
		return claims.IssuedAt.Time
	}
	// No age information at all: treat as stale so it gets re-signed.
	return time.Time{}
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodEd25519:
		return jwt.SigningMethodEdDSA
	default:
		return jwt.SigningMethodHS256
	}
}

func (m *Manager) signKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodEd25519:
		return parseEdPrivateKey(m.config.PrivateKey)
	default:
		return m.config.PrivateKey, nil
	}
}

func (m *Manager) verifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodEd25519:
		if len(m.config.PublicKey) > 0 {
			return parseEdPublicKey(m.config.PublicKey)
		}
		priv, err := parseEdPrivateKey(m.config.PrivateKey)
		if err != nil {
			return nil, err
		}
		return priv.Public(), nil
	default:
		return m.config.PrivateKey, nil
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
