package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned for every verification failure. Callers
	// outside the service only ever see its message.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken wraps ErrInvalidToken so errors.Is(err, ErrInvalidToken) holds.
	ErrExpiredToken = fmt.Errorf("%w: token has expired", ErrInvalidToken)
	// ErrUnsupportedAlgorithm is returned by NewManager for non-HMAC algorithms.
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
)

// DefaultAlgorithm is used when no algorithm is configured.
const DefaultAlgorithm = "HS256"

// Claims identifies a participant inside one room.
type Claims struct {
	jwt.RegisteredClaims
	RoomID        string `json:"room_id"`
	ParticipantID string `json:"participant_id"`
	Nickname      string `json:"nickname"`
}

// Manager issues and verifies room session tokens. It holds no per-token
// state: validity depends only on signature and expiry.
type Manager struct {
	secret   []byte
	method   jwt.SigningMethod
	duration time.Duration
	issuer   string
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a token manager. algorithm must name an HMAC method
// (HS256, HS384, HS512), in any case; an empty value selects HS256.
func NewManager(secret, algorithm string, duration time.Duration, issuer string, opts ...Option) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	if duration <= 0 {
		return nil, fmt.Errorf("jwt duration must be positive, got %s", duration)
	}
	method, err := hmacMethod(algorithm)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		secret:   []byte(secret),
		method:   method,
		duration: duration,
		issuer:   issuer,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// CheckAlgorithm reports whether algorithm names an HMAC signing method.
// Names are case-insensitive and an empty value means DefaultAlgorithm.
func CheckAlgorithm(algorithm string) error {
	_, err := hmacMethod(algorithm)
	return err
}

func hmacMethod(algorithm string) (jwt.SigningMethod, error) {
	name := strings.ToUpper(strings.TrimSpace(algorithm))
	if name == "" {
		name = DefaultAlgorithm
	}
	method := jwt.GetSigningMethod(name)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algorithm)
	}
	return method, nil
}

// Issue signs a token for a participant of a room.
func (m *Manager) Issue(roomID, participantID, nickname string) (string, error) {
	now := m.now()

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    m.issuer,
			Subject:   participantID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.duration)),
		},
		RoomID:        roomID,
		ParticipantID: participantID,
		Nickname:      nickname,
	}

	signed, err := jwt.NewWithClaims(m.method, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify validates signature, algorithm and expiry, and requires the room,
// participant and nickname claims to be present.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.RoomID == "" || claims.ParticipantID == "" || claims.Nickname == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ExpiresAtTime returns the expiry instant, or the zero time when absent.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
