package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	saveerrors "github.com/savehaven/savehaven/internal/errors"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	color.NoColor = true
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	t.Cleanup(restore)
	return &buf
}

func TestPrinters(t *testing.T) {
	buf := capture(t)

	PrintSuccess("uploaded %s", "Hades")
	PrintSkip("skipped %s", "Celeste")
	PrintWarning("careful")

	got := buf.String()
	for _, want := range []string{"✓ uploaded Hades", "- skipped Celeste", "! careful"} {
		if !strings.Contains(got, want) {
			t.Errorf("Output missing %q:\n%s", want, got)
		}
	}
}

func TestPrintSaveError(t *testing.T) {
	buf := capture(t)

	err := saveerrors.NewRestoreError("Hades", "/backups/Hades/Hades-20240101-000000", errors.New("unpack failed"))
	PrintSaveError(err)

	got := buf.String()
	if !strings.Contains(got, "Hades") {
		t.Errorf("Expected game name in output:\n%s", got)
	}
	if !strings.Contains(got, "Location: /backups/Hades/Hades-20240101-000000") {
		t.Errorf("Expected backup location in output:\n%s", got)
	}

	buf.Reset()
	PrintSaveError(errors.New("plain failure"))
	if !strings.Contains(buf.String(), "✗ plain failure") {
		t.Errorf("Unexpected plain error output: %s", buf.String())
	}
}

func TestPrintSummaryTableKeepsOrder(t *testing.T) {
	buf := capture(t)

	PrintSummaryTable([]string{"Uploaded", "Failed"}, map[string]string{"Uploaded": "2", "Failed": "1"})

	got := buf.String()
	if strings.Index(got, "Uploaded") > strings.Index(got, "Failed") {
		t.Errorf("Rows out of order:\n%s", got)
	}
	if !strings.Contains(got, "Failed:   1") {
		t.Errorf("Expected padded row:\n%s", got)
	}
}

func TestSpinner(t *testing.T) {
	buf := capture(t)

	s := NewSpinner("Uploading Hades")
	s.Start()
	s.Stop()
	s.Stop()

	if strings.Count(buf.String(), "✓ Uploading Hades") != 1 {
		t.Errorf("Spinner should finish exactly once:\n%q", buf.String())
	}
}

func TestFormatEpoch(t *testing.T) {
	if got := FormatEpoch(0); got != "never" {
		t.Errorf("Expected never, got %s", got)
	}

	ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.Local)
	if got := FormatEpoch(float64(ts.Unix()) + 0.25); got != "2024-02-03 04:05:06" {
		t.Errorf("Unexpected format: %s", got)
	}
}
