package audit

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"time"
)

// WriteCSV serialises timeline rows, newest first as given.
func WriteCSV(w io.Writer, entries []Entry) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"At", "Actor", "Action", "Entity", "Target ID", "Target Email", "Details"}); err != nil {
		return err
	}
	for _, e := range entries {
		details, err := json.Marshal(e.Details)
		if err != nil {
			return err
		}
		if err := writer.Write([]string{
			e.At.UTC().Format(time.RFC3339),
			e.ActorLabel(),
			string(e.Action),
			string(e.Entity),
			e.TargetID,
			e.TargetEmail,
			string(details),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
