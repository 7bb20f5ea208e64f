// Package archetype characterizes anchors by matching a DNA-derived
// capability vector against a fixed catalog of prototype profiles.
package archetype

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/halcyonworks/anchorage/internal/identity/domain"
	apperrors "github.com/halcyonworks/anchorage/internal/platform/errors"
	"github.com/halcyonworks/anchorage/internal/storage"
)

// Prototype is one named profile in the catalog.
type Prototype struct {
	Name         string
	Capabilities Vector
	Stability    float64
}

// stabilityWeight doubles the stability distance relative to a single
// capability dimension.
const stabilityWeight = 2.0

// DefaultCatalog is the fixed prototype catalog. The names are
// representational flavor; classification is a plain distance lookup.
var DefaultCatalog = []Prototype{
	{
		Name:      "analyst",
		Stability: 0.8,
		Capabilities: Vector{
			CapabilityReasoning: 0.9, CapabilityPatternRecognition: 0.85,
			CapabilityAdaptability: 0.5, CapabilityPrecision: 0.85,
			CapabilityDivergentThinking: 0.4, CapabilityResponseSpeed: 0.5,
			CapabilityRetention: 0.8, CapabilityCollaboration: 0.5,
		},
	},
	{
		Name:      "explorer",
		Stability: 0.4,
		Capabilities: Vector{
			CapabilityReasoning: 0.6, CapabilityPatternRecognition: 0.6,
			CapabilityAdaptability: 0.9, CapabilityPrecision: 0.4,
			CapabilityDivergentThinking: 0.9, CapabilityResponseSpeed: 0.7,
			CapabilityRetention: 0.5, CapabilityCollaboration: 0.6,
		},
	},
	{
		Name:      "architect",
		Stability: 0.85,
		Capabilities: Vector{
			CapabilityReasoning: 0.85, CapabilityPatternRecognition: 0.7,
			CapabilityAdaptability: 0.6, CapabilityPrecision: 0.9,
			CapabilityDivergentThinking: 0.6, CapabilityResponseSpeed: 0.4,
			CapabilityRetention: 0.9, CapabilityCollaboration: 0.6,
		},
	},
	{
		Name:      "sprinter",
		Stability: 0.5,
		Capabilities: Vector{
			CapabilityReasoning: 0.6, CapabilityPatternRecognition: 0.5,
			CapabilityAdaptability: 0.7, CapabilityPrecision: 0.5,
			CapabilityDivergentThinking: 0.5, CapabilityResponseSpeed: 0.95,
			CapabilityRetention: 0.4, CapabilityCollaboration: 0.5,
		},
	},
	{
		Name:      "guardian",
		Stability: 0.95,
		Capabilities: Vector{
			CapabilityReasoning: 0.7, CapabilityPatternRecognition: 0.6,
			CapabilityAdaptability: 0.4, CapabilityPrecision: 0.95,
			CapabilityDivergentThinking: 0.3, CapabilityResponseSpeed: 0.5,
			CapabilityRetention: 0.8, CapabilityCollaboration: 0.6,
		},
	},
	{
		Name:      "collaborator",
		Stability: 0.7,
		Capabilities: Vector{
			CapabilityReasoning: 0.6, CapabilityPatternRecognition: 0.6,
			CapabilityAdaptability: 0.7, CapabilityPrecision: 0.6,
			CapabilityDivergentThinking: 0.6, CapabilityResponseSpeed: 0.6,
			CapabilityRetention: 0.6, CapabilityCollaboration: 0.95,
		},
	},
	{
		Name:      "generalist",
		Stability: 0.6,
		Capabilities: Vector{
			CapabilityReasoning: 0.6, CapabilityPatternRecognition: 0.6,
			CapabilityAdaptability: 0.6, CapabilityPrecision: 0.6,
			CapabilityDivergentThinking: 0.6, CapabilityResponseSpeed: 0.6,
			CapabilityRetention: 0.6, CapabilityCollaboration: 0.6,
		},
	},
	{
		Name:      "apprentice",
		Stability: 0.45,
		Capabilities: Vector{
			CapabilityReasoning: 0.35, CapabilityPatternRecognition: 0.3,
			CapabilityAdaptability: 0.55, CapabilityPrecision: 0.35,
			CapabilityDivergentThinking: 0.35, CapabilityResponseSpeed: 0.6,
			CapabilityRetention: 0.2, CapabilityCollaboration: 0.45,
		},
	},
}

// Classification is the result of classifying one anchor.
type Classification struct {
	AnchorID        string
	Capabilities    Vector
	Stability       float64
	Archetype       string
	Distance        float64
	Recommendations []string
}

// Classifier matches anchors against the prototype catalog.
type Classifier struct {
	profiles storage.DNAStore
	catalog  []Prototype
}

// NewClassifier creates a classifier. A nil catalog uses DefaultCatalog.
func NewClassifier(profiles storage.DNAStore, catalog []Prototype) (*Classifier, error) {
	if profiles == nil {
		return nil, fmt.Errorf("dna store is required")
	}
	if len(catalog) == 0 {
		catalog = DefaultCatalog
	}
	return &Classifier{profiles: profiles, catalog: catalog}, nil
}

// Classify derives the anchor's capability vector and stability, finds the
// nearest prototype, and produces rule-based recommendations.
func (c *Classifier) Classify(ctx context.Context, anchorID string) (Classification, error) {
	if c == nil {
		return Classification{}, fmt.Errorf("classifier is not configured")
	}
	anchorID = strings.TrimSpace(anchorID)
	if anchorID == "" {
		return Classification{}, domain.ErrEmptyGlobalID
	}

	profile, err := c.profiles.GetDNAProfile(ctx, anchorID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Classification{}, apperrors.WithMetadata(
				apperrors.CodeDNAProfileNotFound,
				"dna profile not found",
				map[string]string{"anchor_id": anchorID},
			)
		}
		return Classification{}, fmt.Errorf("load dna profile: %w", err)
	}

	capabilities := deriveVector(profile)
	stability := deriveStability(profile)
	name, distance := c.nearest(capabilities, stability)

	return Classification{
		AnchorID:        anchorID,
		Capabilities:    capabilities,
		Stability:       stability,
		Archetype:       name,
		Distance:        distance,
		Recommendations: recommend(capabilities, stability),
	}, nil
}

// nearest returns the prototype minimizing the summed absolute capability
// distance plus the double-weighted stability distance.
func (c *Classifier) nearest(capabilities Vector, stability float64) (string, float64) {
	best := ""
	bestDistance := math.Inf(1)
	for _, prototype := range c.catalog {
		distance := prototypeDistance(prototype, capabilities, stability)
		if distance < bestDistance {
			best = prototype.Name
			bestDistance = distance
		}
	}
	return best, bestDistance
}

func prototypeDistance(prototype Prototype, capabilities Vector, stability float64) float64 {
	var distance float64
	for _, capability := range Capabilities {
		distance += math.Abs(capabilities[capability] - prototype.Capabilities[capability])
	}
	distance += stabilityWeight * math.Abs(stability-prototype.Stability)
	return distance
}

// recommend applies fixed qualitative rules to the derived scores.
func recommend(capabilities Vector, stability float64) []string {
	var recommendations []string
	if capabilities[CapabilityReasoning] > 0.7 && stability < 0.4 {
		recommendations = append(recommendations, "strong reasoning with unstable output; pair with a stabilizing reviewer")
	}
	if capabilities[CapabilityPrecision] < 0.4 {
		recommendations = append(recommendations, "low precision; add verification steps before committing results")
	}
	if capabilities[CapabilityRetention] < 0.3 {
		recommendations = append(recommendations, "limited history; conclusions are provisional until more sessions accumulate")
	}
	if capabilities[CapabilityDivergentThinking] > 0.8 && capabilities[CapabilityPrecision] < 0.5 {
		recommendations = append(recommendations, "highly divergent but imprecise; constrain scope per task")
	}
	if capabilities[CapabilityCollaboration] < 0.35 {
		recommendations = append(recommendations, "little source engagement; widen trusted reference sources")
	}
	if stability > 0.8 && capabilities[CapabilityAdaptability] < 0.4 {
		recommendations = append(recommendations, "very stable but rigid; introduce varied task types gradually")
	}
	return recommendations
}
