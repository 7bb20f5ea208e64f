package minting

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Segments of the local identifier format, for example
// ANC1-GLB-EN-004217-AGT-202608-3F-A1: version, geography, locale, sequence,
// entity type, year-month, and two checksum tags derived from the preceding
// segments.
const (
	versionTag   = "ANC1"
	geographyTag = "GLB"
	localeTag    = "EN"
	delimiter    = "-"
)

// LocalGenerator produces fallback identifiers when the minting authority is
// unreachable. Identifiers are structurally identical to authority-issued
// ones and pass the same validator.
type LocalGenerator struct {
	seq uint64
	now func() time.Time
}

// NewLocalGenerator creates a generator with a randomized sequence start so
// independent processes do not collide on low numbers.
func NewLocalGenerator(now func() time.Time) (*LocalGenerator, error) {
	if now == nil {
		now = time.Now
	}
	var seed [8]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("seed sequence: %w", err)
	}
	g := &LocalGenerator{now: now}
	g.seq = binary.BigEndian.Uint64(seed[:]) % 900000
	return g, nil
}

// Generate produces the next local identifier for an entity type.
func (g *LocalGenerator) Generate(entityType string) (string, error) {
	if g == nil {
		return "", fmt.Errorf("generator is not configured")
	}
	tag := entityTypeTag(entityType)
	if tag == "" {
		return "", fmt.Errorf("entity type is required")
	}

	seq := atomic.AddUint64(&g.seq, 1) % 1000000
	now := g.now().UTC()

	segments := []string{
		versionTag,
		geographyTag,
		localeTag,
		fmt.Sprintf("%06d", seq),
		tag,
		now.Format("200601"),
	}
	c1, c2 := checksumTags(segments)
	segments = append(segments, c1, c2)
	return strings.Join(segments, delimiter), nil
}

// entityTypeTag derives the fixed-width uppercase tag for an entity type:
// the first three letters, padded with X.
func entityTypeTag(entityType string) string {
	entityType = strings.TrimSpace(entityType)
	if entityType == "" {
		return ""
	}
	var letters []rune
	for _, r := range strings.ToUpper(entityType) {
		if r >= 'A' && r <= 'Z' {
			letters = append(letters, r)
			if len(letters) == 3 {
				break
			}
		}
	}
	if len(letters) == 0 {
		return ""
	}
	for len(letters) < 3 {
		letters = append(letters, 'X')
	}
	return string(letters)
}

// checksumTags returns the two 2-hex-digit tags covering the preceding
// segments.
func checksumTags(segments []string) (string, string) {
	sum := sha256.Sum256([]byte(strings.Join(segments, delimiter)))
	return fmt.Sprintf("%02X", sum[0]), fmt.Sprintf("%02X", sum[1])
}
