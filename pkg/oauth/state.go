package oauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// DefaultStateTTL bounds how long an authorization link stays valid
const DefaultStateTTL = 15 * time.Minute

// ErrEmptyStateSecret is returned for a signer without a key, whose states anyone could forge
var ErrEmptyStateSecret = errors.New("oauth state secret is empty")

// StateSigner mints and verifies the CSRF state carried through the provider consent screen.
// A state is "<unix-seconds>.<hex HMAC-SHA256(secret, tenant|platform|unix-seconds)>" and is
// never stored: verification recomputes it.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewStateSigner creates a signer. A zero ttl disables expiry.
func NewStateSigner(secret string, ttl time.Duration) (*StateSigner, error) {
	if secret == "" {
		return nil, ErrEmptyStateSecret
	}
	return &StateSigner{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the clock, for tests
func (s *StateSigner) WithClock(now func() time.Time) *StateSigner {
	s.now = now
	return s
}

// Generate mints a state for the tenant and platform
func (s *StateSigner) Generate(tenantID string, platform models.Platform) string {
	ts := strconv.FormatInt(s.now().Unix(), 10)
	return ts + "." + s.sign(tenantID, platform, ts)
}

// Verify recomputes the state for (tenant, platform) and the embedded timestamp. Any mismatch,
// malformed value or expired timestamp is ErrInvalidState.
func (s *StateSigner) Verify(state, tenantID string, platform models.Platform) error {
	ts, mac, ok := strings.Cut(state, ".")
	if !ok || ts == "" || mac == "" {
		return fmt.Errorf("%w: malformed state", models.ErrInvalidState)
	}

	issued, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed timestamp", models.ErrInvalidState)
	}

	expected := s.sign(tenantID, platform, ts)
	if !hmac.Equal([]byte(mac), []byte(expected)) {
		return fmt.Errorf("%w: signature mismatch", models.ErrInvalidState)
	}

	if s.ttl > 0 {
		age := s.now().Sub(time.Unix(issued, 0))
		if age > s.ttl || age < -time.Minute {
			return fmt.Errorf("%w: state expired", models.ErrInvalidState)
		}
	}
	return nil
}

func (s *StateSigner) sign(tenantID string, platform models.Platform, ts string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(tenantID + "|" + string(platform) + "|" + ts))
	return hex.EncodeToString(h.Sum(nil))
}
