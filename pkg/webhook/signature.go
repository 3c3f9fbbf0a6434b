package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const signaturePrefix = "sha256="

// Signer computes and checks event signatures. The signed message is each of tenant_id,
// account_id and event_type written as "<byte length>:<value>", followed by the raw data
// bytes. The length prefixes keep field boundaries unambiguous when account ids contain
// separators, e.g. Search Console site URLs.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer for the shared webhook secret
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the hex HMAC-SHA256 of the event, without prefix
func (s *Signer) Sign(tenantID uuid.UUID, accountID, eventType string, data []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	for _, field := range []string{tenantID.String(), accountID, eventType} {
		mac.Write([]byte(strconv.Itoa(len(field)) + ":" + field))
	}
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature in constant time. A "sha256=" prefix is accepted.
func (s *Signer) Verify(event *Event) bool {
	if len(s.secret) == 0 || event.Signature == "" {
		return false
	}
	signature := strings.TrimPrefix(strings.ToLower(event.Signature), signaturePrefix)
	expected := s.Sign(event.TenantID, event.AccountID, event.EventType, event.Data)
	return hmac.Equal([]byte(signature), []byte(expected))
}
