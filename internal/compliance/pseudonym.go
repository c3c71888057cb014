package compliance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// Pseudonymizer maps user ids to stable opaque labels. The same key always
// yields the same label for the same id.
type Pseudonymizer struct {
	key []byte
}

func NewPseudonymizer(key []byte) *Pseudonymizer {
	return &Pseudonymizer{key: key}
}

func (p *Pseudonymizer) User(userID uuid.UUID) string {
	if userID == uuid.Nil {
		return ""
	}
	mac := hmac.New(sha256.New, p.key)
	mac.Write(userID[:])
	return "user-" + hex.EncodeToString(mac.Sum(nil))[:16]
}
