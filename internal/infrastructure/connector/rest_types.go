package connector

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/truthsource/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Wire types for the custom_api sync protocol
// ---------------------------------------------------------------------------

// restSyncRequest is the body of POST /v1/sync/{entity}
type restSyncRequest struct {
	// Limit caps the number of records the remote examines (0 = all)
	Limit int `json:"limit,omitempty"`
	// Force requests a full pull even for incremental integrations
	Force bool `json:"force,omitempty"`
	// DryRun asks the remote to diff without writing
	DryRun bool `json:"dry_run,omitempty"`
	// BatchSize is the page size the remote should use internally
	BatchSize int `json:"batch_size,omitempty"`
}

// restSyncSummary carries the per-entity counters reported by the remote
type restSyncSummary struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// restFailedRecord is one record the remote could not sync
type restFailedRecord struct {
	RecordID string `json:"record_id"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// restConflict is one field divergence the remote detected. Values are raw
// JSON; prices and quantities typically arrive as strings or numbers
// depending on how the remote serializes them.
type restConflict struct {
	RecordID        string          `json:"record_id"`
	Field           string          `json:"field"`
	SourceValue     json.RawMessage `json:"source_value"`
	TargetValue     json.RawMessage `json:"target_value"`
	SourceUpdatedAt string          `json:"source_updated_at,omitempty"`
	TargetUpdatedAt string          `json:"target_updated_at,omitempty"`
}

// restSyncResponse is the body returned by POST /v1/sync/{entity}
type restSyncResponse struct {
	Entity        string             `json:"entity"`
	Summary       restSyncSummary    `json:"summary"`
	FailedRecords []restFailedRecord `json:"failed_records,omitempty"`
	Conflicts     []restConflict     `json:"conflicts,omitempty"`
}

// restPingResponse is the body returned by GET /v1/ping
type restPingResponse struct {
	Status string `json:"status"`
}

// ---------------------------------------------------------------------------
// Conflict normalization
// ---------------------------------------------------------------------------

// decimalValue parses a raw JSON value as a decimal. Accepts bare numbers
// and numeric strings, the two renderings remotes use for prices and
// quantities.
func decimalValue(raw json.RawMessage) (decimal.Decimal, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return decimal.Decimal{}, false
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return decimal.Decimal{}, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	}
	d, err := decimal.NewFromString(string(trimmed))
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// isFalseConflict reports whether a conflict's source and target values are
// actually the same. Remotes render the same price in different ways
// ("12.90" vs 12.9), and forwarding those as conflicts would page humans
// for formatting noise.
func isFalseConflict(c restConflict) bool {
	if bytes.Equal(bytes.TrimSpace(c.SourceValue), bytes.TrimSpace(c.TargetValue)) {
		return true
	}
	src, okSrc := decimalValue(c.SourceValue)
	tgt, okTgt := decimalValue(c.TargetValue)
	return okSrc && okTgt && src.Equal(tgt)
}

// toCandidateConflicts converts the remote's conflict reports into domain
// candidates, dropping false conflicts
func toCandidateConflicts(entityType integration.EntityType, reported []restConflict) []integration.CandidateConflict {
	if len(reported) == 0 {
		return nil
	}
	candidates := make([]integration.CandidateConflict, 0, len(reported))
	for _, c := range reported {
		if isFalseConflict(c) {
			continue
		}
		candidates = append(candidates, integration.CandidateConflict{
			EntityType:      entityType,
			RecordID:        c.RecordID,
			Field:           c.Field,
			SourceValue:     c.SourceValue,
			TargetValue:     c.TargetValue,
			SourceUpdatedAt: c.SourceUpdatedAt,
			TargetUpdatedAt: c.TargetUpdatedAt,
		})
	}
	if len(candidates) == 0 {
		return nil
	}
	return candidates
}

// toFailedRecords converts the remote's failure reports into domain failures
func toFailedRecords(reported []restFailedRecord) []integration.RecordFailure {
	if len(reported) == 0 {
		return nil
	}
	failures := make([]integration.RecordFailure, 0, len(reported))
	for _, f := range reported {
		failures = append(failures, integration.RecordFailure{
			RecordID: f.RecordID,
			Code:     f.Code,
			Message:  f.Message,
		})
	}
	return failures
}
