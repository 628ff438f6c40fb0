package audit

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/colegio-portal/colegio-portal/internal/authz"
)

// WriteCSV streams audit entries as CSV for the compliance export.
func WriteCSV(w io.Writer, entries []authz.AuditEntry) error {
	cw := csv.NewWriter(w)
	header := []string{"id", "occurred_at", "user_id", "service_key", "action", "actor_id", "reason", "previous_granted", "new_granted"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, entry := range entries {
		prev := ""
		if entry.PreviousState != nil {
			prev = strconv.FormatBool(entry.PreviousState.Granted)
		}
		record := []string{
			entry.ID,
			entry.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatInt(entry.UserID, 10),
			entry.ServiceKey,
			string(entry.Action),
			strconv.FormatInt(entry.ActorID, 10),
			entry.Reason,
			prev,
			strconv.FormatBool(entry.NewState.Granted),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
