package ledger

// AnchorCreatedPayload captures the payload for anchor.created entries.
type AnchorCreatedPayload struct {
	GlobalID    string  `json:"global_id"`
	AnchorHash  string  `json:"anchor_hash"`
	MintedLocal bool    `json:"minted_local"`
	TrustScore  float64 `json:"trust_score"`
	TrustLevel  int     `json:"trust_level"`
}

// AnchorStatusChangedPayload captures the payload for anchor.status_changed entries.
type AnchorStatusChangedPayload struct {
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	Reason     string `json:"reason,omitempty"`
}

// SessionBoundPayload captures the payload for session.bound entries.
type SessionBoundPayload struct {
	SessionID string `json:"session_id"`
	Platform  string `json:"platform,omitempty"`
}

// SessionUnboundPayload captures the payload for session.unbound entries.
type SessionUnboundPayload struct {
	SessionID    string `json:"session_id"`
	Reason       string `json:"reason,omitempty"`
	Interactions int    `json:"interactions"`
	Decisions    int    `json:"decisions"`
}

// DNAAccumulatedPayload captures the payload for dna.accumulated entries.
type DNAAccumulatedPayload struct {
	SessionID           string  `json:"session_id,omitempty"`
	SessionInteractions int     `json:"session_interactions"`
	TotalInteractions   int     `json:"total_interactions"`
	SuccessRate         float64 `json:"success_rate"`
	AnomalyCount        int     `json:"anomaly_count"`
}

// ExposureRecordedPayload captures the payload for exposure.recorded entries.
type ExposureRecordedPayload struct {
	Source          string  `json:"source"`
	Category        string  `json:"category,omitempty"`
	InteractionType string  `json:"interaction_type,omitempty"`
	Sentiment       float64 `json:"sentiment"`
	Compliance      float64 `json:"compliance"`
}

// TraitShiftedPayload captures the payload for behavior.trait_shifted entries.
type TraitShiftedPayload struct {
	Trait    string  `json:"trait"`
	Previous float64 `json:"previous"`
	Current  float64 `json:"current"`
}

// RedFlagRaisedPayload captures the payload for behavior.red_flag_raised entries.
type RedFlagRaisedPayload struct {
	Flag     string  `json:"flag"`
	Severity float64 `json:"severity"`
	Detail   string  `json:"detail,omitempty"`
}

// TrustChangedPayload captures the payload for anchor.trust_changed entries.
type TrustChangedPayload struct {
	PreviousScore float64 `json:"previous_score"`
	NewScore      float64 `json:"new_score"`
	PreviousLevel int     `json:"previous_level"`
	NewLevel      int     `json:"new_level"`
}
