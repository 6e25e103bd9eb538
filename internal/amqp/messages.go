package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"cagnotte/internal/sheets"
)

// ExportJob asks the worker to write a snapshot of a ledger to Google Sheets.
// The snapshot is self-contained because sessions do not outlive the web process.
type ExportJob struct {
	ID          string       `json:"id"`
	RequestedAt time.Time    `json:"requested_at"`
	Sheet       sheets.Sheet `json:"sheet"`
}

func NewExportJob(sheet sheets.Sheet) *ExportJob {
	return &ExportJob{
		ID:          uuid.NewString(),
		RequestedAt: time.Now().UTC(),
		Sheet:       sheet,
	}
}

func (m *ExportJob) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExportJobFromJSON decodes and checks a job body.
func ExportJobFromJSON(data []byte) (*ExportJob, error) {
	var msg ExportJob
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("export job without id")
	}
	if len(msg.Sheet.Headers) == 0 {
		return nil, errors.New("export job without headers")
	}
	return &msg, nil
}
