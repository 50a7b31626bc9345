// Package ledger maintains a spreadsheet index of processed sessions, one row
// per successfully published bundle.
package ledger

import (
	"fmt"
	"os"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/kylenessen/ramble/internal/logger"
	"github.com/kylenessen/ramble/internal/types"
)

var header = []any{
	"Processed At", "Session Title", "Source File", "Bundle Folder",
	"Duration (s)", "Word Count", "Confidence",
}

// Ledger appends session rows to an xlsx workbook. Failures are reported to
// the caller but are never allowed to fail the pipeline.
type Ledger struct {
	path string
	mu   sync.Mutex
	log  *logger.Logger
}

// New creates a ledger writing to path.
func New(path string) *Ledger {
	return &Ledger{path: path, log: logger.New()}
}

// Record appends one processed session to the workbook, creating it with a
// header row on first use.
func (l *Ledger) Record(meta types.BundleMetadata, folder string, confidence float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, sheet, next, err := l.open()
	if err != nil {
		return err
	}
	defer f.Close()

	row := []any{
		meta.ProcessingDate,
		meta.SessionTitle,
		meta.OriginalFilename,
		folder,
		meta.DurationSeconds,
		meta.WordCount,
		confidence,
	}
	cell := fmt.Sprintf("A%d", next)
	if err := f.SetSheetRow(sheet, cell, &row); err != nil {
		return fmt.Errorf("write ledger row: %w", err)
	}
	if err := f.SaveAs(l.path); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	l.log.WithField("session", meta.SessionTitle).Debug("session recorded in ledger")
	return nil
}

func (l *Ledger) open() (*excelize.File, string, int, error) {
	if _, err := os.Stat(l.path); err != nil {
		f := excelize.NewFile()
		sheet := f.GetSheetList()[0]
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			f.Close()
			return nil, "", 0, fmt.Errorf("write ledger header: %w", err)
		}
		return f, sheet, 2, nil
	}

	f, err := excelize.OpenFile(l.path)
	if err != nil {
		return nil, "", 0, fmt.Errorf("open ledger: %w", err)
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, "", 0, fmt.Errorf("ledger workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		f.Close()
		return nil, "", 0, fmt.Errorf("read ledger rows: %w", err)
	}
	return f, sheets[0], len(rows) + 1, nil
}
