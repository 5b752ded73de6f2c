package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/vncsmyrnk/tally/internal/core/ports"
)

// auditSigner produces local audit proofs: an HMAC over the vote's
// uniqueness key and its per-target sequence. The proofs are tamper-evident
// for whoever holds the secret. They are not a distributed ledger commitment.
type auditSigner struct {
	secret []byte
}

func NewAuditSigner(secret string) ports.AuditSigner {
	return &auditSigner{secret: []byte(secret)}
}

func (s *auditSigner) Seal(key string, sequence int64) string {
	return hex.EncodeToString(s.mac(key, sequence))
}

func (s *auditSigner) Verify(key string, sequence int64, proofHash string) bool {
	got, err := hex.DecodeString(proofHash)
	if err != nil {
		return false
	}
	return hmac.Equal(got, s.mac(key, sequence))
}

func (s *auditSigner) mac(key string, sequence int64) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(key))
	mac.Write([]byte{'#'})
	mac.Write([]byte(strconv.FormatInt(sequence, 10)))
	return mac.Sum(nil)
}
