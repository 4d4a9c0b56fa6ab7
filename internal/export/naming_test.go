package export

import (
	"testing"
	"time"
)

func TestArtifactName(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

	tests := []struct {
		report, id, ext string
		job             int
		want            string
	}{
		{"rep", "abc", "pdf", 1, "export_rep_abc_20250304_050607_j1.pdf"},
		{"rep", "Mi9CbG9iSWRWMi1hNWUxOTZlYy1mNzQ2LTRiYzctOWM1Zi0", "pptx", 12,
			"export_rep_Mi9CbG9iSWRWMi1hNWUx_20250304_050607_j12.pptx"},
		{"rep", "ab/cd+ef", "png", 2, "export_rep_ab_cd+ef_20250304_050607_j2.png"},
	}

	for _, tt := range tests {
		got := ArtifactName(tt.report, tt.id, ts, tt.ext, tt.job)
		if got != tt.want {
			t.Errorf("ArtifactName(%q, %q) = %q, want %q", tt.report, tt.id, got, tt.want)
		}
	}
}

func TestExportFormat(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"format":"PDF"}`, "pdf"},
		{`{"format":"PPTX","powerBIReportConfiguration":{}}`, "pptx"},
		{`{"format":"png"}`, "png"},
		{`{}`, "pdf"},
		{`{"format":"../x"}`, "pdf"},
		{`not json`, "pdf"},
		{``, "pdf"},
	}

	for _, tt := range tests {
		if got := ExportFormat([]byte(tt.body)); got != tt.want {
			t.Errorf("ExportFormat(%s) = %q, want %q", tt.body, got, tt.want)
		}
	}
}
