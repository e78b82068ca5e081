package model

import "time"

// AttemptsExport is the top-level JSON structure for attempt export.
type AttemptsExport struct {
	ExportedAt time.Time     `json:"exported_at"`
	Email      string        `json:"email,omitempty"`
	Total      int           `json:"total"`
	Correct    int           `json:"correct"`
	Chains     []ChainExport `json:"chains"`
}

// ChainExport groups the attempts of one chain in round order.
type ChainExport struct {
	ChainID   string    `json:"chain_id"`
	Email     string    `json:"email"`
	StartURL  string    `json:"start_url"`
	StartedAt time.Time `json:"started_at"`
	Rounds    []Attempt `json:"rounds"`
}
