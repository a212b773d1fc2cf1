package dto

import (
	"encoding/json"

	"docforge/internal/core/entity"
	"docforge/internal/domain/filter"
)

// MatchRequest evaluates filters against an in-memory document.
type MatchRequest struct {
	Filters  json.RawMessage `json:"filters" binding:"required"`
	Document map[string]any  `json:"document"`
}

// MatchResponse reports the outcome and echoes the normalized filters.
type MatchResponse struct {
	Match   bool        `json:"match"`
	Filters filter.List `json:"filters"`
}

// ValidateResponse returns the coerced document.
type ValidateResponse struct {
	Valid  bool           `json:"valid"`
	Values map[string]any `json:"values"`
}

// HistoryResponse lists the lifecycle transitions of one document.
type HistoryResponse struct {
	Items []entity.Transition `json:"items"`
}
