package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultStateTTL is how long an authorization state stays valid.
const DefaultStateTTL = 10 * time.Minute

// MinStateSecretLength is the minimum HMAC key size in bytes.
const MinStateSecretLength = 32

// ErrInvalidState is returned for a malformed, forged or expired state.
var ErrInvalidState = errors.New("invalid or expired state")

// StateSigner issues and verifies the OAuth state parameter. A state is
// "user.nonce.expiry.mac" where mac is HMAC-SHA256 over the first three
// parts, so the callback can recover the user without server-side storage.
type StateSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewStateSigner creates a StateSigner. secret must be at least
// MinStateSecretLength bytes.
func NewStateSigner(secret []byte, ttl time.Duration) (*StateSigner, error) {
	if len(secret) < MinStateSecretLength {
		return nil, fmt.Errorf("state secret must be at least %d bytes", MinStateSecretLength)
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateSigner{key: secret, ttl: ttl, now: time.Now}, nil
}

// Sign returns a state bound to userID.
func (s *StateSigner) Sign(userID string) string {
	payload := strings.Join([]string{
		base64.RawURLEncoding.EncodeToString([]byte(userID)),
		uuid.NewString(),
		strconv.FormatInt(s.now().Add(s.ttl).Unix(), 10),
	}, ".")
	return payload + "." + s.mac(payload)
}

// Verify checks state and returns the user it was issued to.
func (s *StateSigner) Verify(state string) (string, error) {
	i := strings.LastIndexByte(state, '.')
	if i < 0 {
		return "", ErrInvalidState
	}
	payload, mac := state[:i], state[i+1:]
	if !hmac.Equal([]byte(mac), []byte(s.mac(payload))) {
		return "", ErrInvalidState
	}

	parts := strings.Split(payload, ".")
	if len(parts) != 3 {
		return "", ErrInvalidState
	}
	expiry, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || s.now().Unix() > expiry {
		return "", ErrInvalidState
	}
	user, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil || len(user) == 0 {
		return "", ErrInvalidState
	}
	return string(user), nil
}

func (s *StateSigner) mac(payload string) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
