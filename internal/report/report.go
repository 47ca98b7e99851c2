// Package report exports the journal of a run as a spreadsheet or CSV, for
// lining the issued calls up against the audit events in the log platform.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chmdznr/minio-audit-demo/pkg/models"
	"github.com/xuri/excelize/v2"
)

var header = []string{"seq", "operation", "key", "size", "outcome", "error", "at", "duration_ms"}

func row(op models.Operation) []string {
	return []string{
		strconv.Itoa(op.Seq),
		op.Name,
		op.Key,
		strconv.FormatInt(op.Size, 10),
		op.Outcome,
		op.Error,
		op.At.UTC().Format(time.RFC3339Nano),
		strconv.FormatInt(op.Duration.Milliseconds(), 10),
	}
}

// WriteCSV writes ops as CSV with a header row
func WriteCSV(w io.Writer, ops []models.Operation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, op := range ops {
		if err := cw.Write(row(op)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX saves the run summary and its operations as a workbook at path
func WriteXLSX(path string, run *models.Run, ops []models.Operation) error {
	f := excelize.NewFile()
	defer f.Close()

	const runSheet, opsSheet = "Run", "Operations"
	if err := f.SetSheetName("Sheet1", runSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(opsSheet); err != nil {
		return err
	}

	summary := [][]interface{}{
		{"Run ID", run.ID},
		{"Endpoint", run.Endpoint},
		{"Bucket", run.Bucket},
		{"Status", run.Status},
		{"Started", run.StartedAt.UTC().Format(time.RFC3339)},
		{"Finished", formatOptionalTime(run.FinishedAt)},
		{"Files generated", run.FilesGenerated},
		{"Files uploaded", run.FilesUploaded},
		{"Files downloaded", run.FilesDownloaded},
	}
	for i, values := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(runSheet, cell, &values); err != nil {
			return err
		}
	}

	headerRow := make([]interface{}, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(opsSheet, "A1", &headerRow); err != nil {
		return err
	}
	for i, op := range ops {
		values := []interface{}{
			op.Seq, op.Name, op.Key, op.Size, op.Outcome, op.Error,
			op.At.UTC().Format(time.RFC3339Nano), op.Duration.Milliseconds(),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(opsSheet, cell, &values); err != nil {
			return err
		}
	}

	return f.SaveAs(path)
}

// Export picks the format from the extension of path
func Export(path string, run *models.Run, ops []models.Operation) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return WriteXLSX(path, run, ops)
	case ".csv":
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := WriteCSV(file, ops); err != nil {
			file.Close()
			return err
		}
		return file.Close()
	default:
		return fmt.Errorf("unsupported export format %q (use .xlsx or .csv)", filepath.Ext(path))
	}
}

func formatOptionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
