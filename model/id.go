package model

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// contentID derives a stable 12-hex identifier from the given parts.
// Identical inputs always produce identical IDs, which is what makes
// re-extraction and re-generation idempotent.
func contentID(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

// JourneyID derives the deterministic journey identifier from the source
// document, section, and normalized journey name.
func JourneyID(documentID, section, name string) string {
	return "jny-" + contentID(documentID, section, NormalizeName(name))
}

// ScenarioID derives the deterministic scenario identifier from the parent
// journey and the zero-based step-sequence index within it.
func ScenarioID(journeyID string, index int) string {
	return "scn-" + contentID(journeyID, fmt.Sprintf("%d", index))
}

// NormalizeName lowercases a name and collapses whitespace runs to single
// hyphens, so cosmetic formatting differences do not change identity.
func NormalizeName(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	return strings.Join(fields, "-")
}

// NewRunID returns a unique run identifier.
func NewRunID() string {
	return "run-" + uuid.New().String()
}

// NewFixID returns a unique fix identifier.
func NewFixID() string {
	return "fix-" + uuid.New().String()
}

// NewBlockerID returns a unique blocker identifier.
func NewBlockerID() string {
	return "blk-" + uuid.New().String()
}
