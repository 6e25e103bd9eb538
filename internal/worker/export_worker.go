package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cagnotte/internal/amqp"
	"cagnotte/internal/log"
	"cagnotte/internal/sheets"
)

// tabTimeLayout stamps each exported tab so repeated exports never collide.
const tabTimeLayout = "2006-01-02 15:04:05"

// ExportWorker writes export jobs to a spreadsheet, one new tab per job.
type ExportWorker struct {
	writer sheets.SheetWriter
	prefix string
	logger *log.Logger
}

func NewExportWorker(writer sheets.SheetWriter, prefix string, logger *log.Logger) *ExportWorker {
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = sheets.ContributionsSheetName
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ExportWorker{writer: writer, prefix: prefix, logger: logger.WithComponent(log.ComponentWorker)}
}

// TabName names the tab for a job requested at t, e.g.
// "Contributions 2026-10-18 14:05:09 #1a2b3c4d".
func TabName(prefix string, t time.Time, jobID string) string {
	name := fmt.Sprintf("%s %s", prefix, t.UTC().Format(tabTimeLayout))
	if id := strings.ReplaceAll(jobID, "-", ""); len(id) >= 8 {
		name += " #" + id[:8]
	}
	return name
}

// HandleExportJob implements amqp.JobHandler.
func (w *ExportWorker) HandleExportJob(ctx context.Context, job *amqp.ExportJob) error {
	if job == nil {
		return errors.New("nil export job")
	}
	sheet := job.Sheet
	sheet.Name = TabName(w.prefix, job.RequestedAt, job.ID)

	w.logger.InfoContext(ctx, "Processing export job",
		"job_id", job.ID,
		log.FieldRows, len(sheet.Rows),
		"sheet", sheet.Name)

	ref, err := w.writer.WriteSheet(ctx, sheet)
	if err != nil {
		return fmt.Errorf("write sheet %q: %w", sheet.Name, err)
	}

	w.logger.InfoContext(ctx, "Export job written",
		"job_id", job.ID,
		log.FieldExportRef, ref,
		log.FieldOperation, log.OpExport)
	return nil
}
