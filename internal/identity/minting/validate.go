package minting

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/halcyonworks/anchorage/internal/platform/errors"
)

// Segment shapes shared by authority-issued and locally generated
// identifiers. The checksum tags are validated structurally only; the
// authority computes its own.
var segmentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^[A-Z]{3}\d$`),           // version, e.g. ANC1
	regexp.MustCompile(`^[A-Z]{2,3}$`),           // geography
	regexp.MustCompile(`^[A-Z]{2}$`),             // locale
	regexp.MustCompile(`^\d{6}$`),                // sequence
	regexp.MustCompile(`^[A-Z]{3}$`),             // entity type tag
	regexp.MustCompile(`^\d{4}(0[1-9]|1[0-2])$`), // year-month
	regexp.MustCompile(`^[0-9A-F]{2}$`),          // checksum tag
	regexp.MustCompile(`^[0-9A-F]{2}$`),          // checksum tag
}

// ValidateGlobalID checks an identifier against the shared structural
// format. Both authority-issued and local-fallback identifiers must pass.
func ValidateGlobalID(globalID string) error {
	globalID = strings.TrimSpace(globalID)
	if globalID == "" {
		return apperrors.New(apperrors.CodeMintInvalidID, "global id is empty")
	}

	segments := strings.Split(globalID, delimiter)
	if len(segments) != len(segmentPatterns) {
		return apperrors.WithMetadata(
			apperrors.CodeMintInvalidID,
			fmt.Sprintf("global id must have %d segments", len(segmentPatterns)),
			map[string]string{"global_id": globalID},
		)
	}
	for i, segment := range segments {
		if !segmentPatterns[i].MatchString(segment) {
			return apperrors.WithMetadata(
				apperrors.CodeMintInvalidID,
				fmt.Sprintf("segment %d is malformed", i+1),
				map[string]string{"global_id": globalID, "segment": segment},
			)
		}
	}
	return nil
}
