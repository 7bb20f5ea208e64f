package behavior

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SourceProfile describes how an external information source is expected to
// influence behavior. Stability and Compliance are both in [0, 1].
type SourceProfile struct {
	Stability  float64 `yaml:"stability"`
	Compliance float64 `yaml:"compliance"`
}

// SourceProfiles maps source identifiers (usually domains) to their
// influence profile. The map is injected into the engine so deployments can
// override it; it is never a hidden process-wide constant.
type SourceProfiles map[string]SourceProfile

// DefaultStability is assumed for sources without a profile.
const DefaultStability = 0.5

// Profile returns the profile for a source, falling back to a neutral one.
func (p SourceProfiles) Profile(source string) SourceProfile {
	if profile, ok := p[source]; ok {
		return profile
	}
	return SourceProfile{Stability: DefaultStability, Compliance: DefaultStability}
}

// ParseSourceProfiles decodes a YAML document of source profiles:
//
//	docs.example.com:
//	  stability: 0.9
//	  compliance: 0.85
func ParseSourceProfiles(data []byte) (SourceProfiles, error) {
	var profiles SourceProfiles
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("parse source profiles: %w", err)
	}
	for source, profile := range profiles {
		if profile.Stability < 0 || profile.Stability > 1 {
			return nil, fmt.Errorf("source %q: stability %v out of range [0, 1]", source, profile.Stability)
		}
		if profile.Compliance < 0 || profile.Compliance > 1 {
			return nil, fmt.Errorf("source %q: compliance %v out of range [0, 1]", source, profile.Compliance)
		}
	}
	return profiles, nil
}

// LoadSourceProfiles reads source profiles from a YAML file.
func LoadSourceProfiles(path string) (SourceProfiles, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("source profile path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source profiles: %w", err)
	}
	return ParseSourceProfiles(data)
}
