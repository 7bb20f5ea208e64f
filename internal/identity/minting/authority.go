// Package minting issues global anchor identifiers. The primary path asks an
// external minting authority; when the authority is unreachable a locally
// generated identifier in the same structural format keeps anchor creation
// available.
package minting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/halcyonworks/anchorage/internal/platform/errors"
)

// DefaultTimeout bounds a single mint call.
const DefaultTimeout = 5 * time.Second

// Authority issues global anchor identifiers.
type Authority interface {
	// Mint requests a new global identifier for an entity. Implementations
	// must honor the context deadline; callers fall back to local
	// generation on error.
	Mint(ctx context.Context, entityType, characterization string, metadata map[string]string) (string, error)
}

// HTTPAuthority talks to a remote minting authority over HTTP JSON.
type HTTPAuthority struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAuthority creates an authority client. A zero timeout uses
// DefaultTimeout.
func NewHTTPAuthority(baseURL string, timeout time.Duration) (*HTTPAuthority, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("authority base url is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPAuthority{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type mintRequest struct {
	EntityType       string            `json:"entity_type"`
	Characterization string            `json:"characterization,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

type mintResponse struct {
	GlobalID string `json:"global_id"`
}

// Mint requests a new global identifier from the remote authority and
// validates its structure before returning it.
func (a *HTTPAuthority) Mint(ctx context.Context, entityType, characterization string, metadata map[string]string) (string, error) {
	if a == nil || a.client == nil {
		return "", apperrors.New(apperrors.CodeMintUnavailable, "minting authority is not configured")
	}
	entityType = strings.TrimSpace(entityType)
	if entityType == "" {
		return "", fmt.Errorf("entity type is required")
	}

	body, err := json.Marshal(mintRequest{
		EntityType:       entityType,
		Characterization: characterization,
		Metadata:         metadata,
	})
	if err != nil {
		return "", fmt.Errorf("marshal mint request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/identifiers:mint", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build mint request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeMintUnavailable, "minting authority unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", apperrors.WithMetadata(
			apperrors.CodeMintUnavailable,
			"minting authority rejected request",
			map[string]string{
				"status": fmt.Sprintf("%d", resp.StatusCode),
				"body":   string(payload),
			},
		)
	}

	var decoded mintResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", apperrors.Wrap(apperrors.CodeMintUnavailable, "decode mint response", err)
	}
	if err := ValidateGlobalID(decoded.GlobalID); err != nil {
		return "", err
	}
	return decoded.GlobalID, nil
}
