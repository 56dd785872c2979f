package history

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"SignalEngine/internal/domain/models"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

var csvHeader = []string{
	"history_id", "signal_id", "asset", "type", "strength", "confidence", "level", "status",
	"timestamp", "expiry_time", "added_to_history_at", "actual_outcome", "accuracy", "outcome_updated_at",
}

// Export renders the whole history in insertion order as json or csv.
func (s *Service) Export(ctx context.Context, format string) ([]byte, error) {
	entries, err := s.entries(ctx)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatJSON, "":
		return json.MarshalIndent(entries, "", "  ")
	case FormatCSV:
		return exportCSV(entries)
	default:
		return nil, models.NewValidationError("format", fmt.Sprintf("unsupported export format %q", format))
	}
}

func exportCSV(entries []*models.HistoryEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, e := range entries {
		var outcome, accuracy, resolved string
		if e.Outcome != nil {
			outcome = e.Outcome.ActualOutcome
		}
		if e.Accuracy != nil {
			accuracy = strconv.FormatFloat(*e.Accuracy, 'f', -1, 64)
		}
		if e.OutcomeUpdatedAt != nil {
			resolved = e.OutcomeUpdatedAt.Format(time.RFC3339)
		}
		row := []string{
			e.HistoryID,
			e.SignalID,
			e.Asset,
			string(e.Type),
			strconv.Itoa(e.Strength),
			strconv.FormatFloat(e.Confidence, 'f', -1, 64),
			string(e.Level),
			string(e.Status),
			e.Timestamp.Format(time.RFC3339),
			e.ExpiryTime.Format(time.RFC3339),
			e.AddedToHistoryAt.Format(time.RFC3339),
			outcome,
			accuracy,
			resolved,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
