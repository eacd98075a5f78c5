package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainDecision = "loopexit/decision/v1"
	DomainProgram  = "loopexit/program/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DecisionID computes the content-addressed ID of one scheduling decision.
// The ID is stable across replays of the same session.
func DecisionID(session string, seq int64, kind string, state StateID) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"session": session,
		"seq":     seq,
		"kind":    kind,
		"state":   state,
	})
	if err != nil {
		return "", fmt.Errorf("DecisionID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDecision, canonical), nil
}

// ProgramHash fingerprints a canonical program description so stored
// sessions can be tied to the analysis results they were scheduled against.
func ProgramHash(canonical []byte) string {
	return hashWithDomain(DomainProgram, canonical)
}
