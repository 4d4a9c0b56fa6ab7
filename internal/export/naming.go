package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	exportIDPrefix = 20
	defaultFormat  = "pdf"
)

var nameReplacer = strings.NewReplacer("/", "_", "\\", "_", " ", "_")

// ArtifactName returns the object name of a persisted export:
// export_{report}_{exportID[:20]}_{YYYYMMDD_HHMMSS}_j{job}.{ext}
func ArtifactName(reportID, exportID string, ts time.Time, ext string, job int) string {
	if len(exportID) > exportIDPrefix {
		exportID = exportID[:exportIDPrefix]
	}
	return fmt.Sprintf("export_%s_%s_%s_j%d.%s",
		nameReplacer.Replace(reportID),
		nameReplacer.Replace(exportID),
		ts.Format("20060102_150405"),
		job,
		ext,
	)
}

// ExportFormat returns the file extension for the "format" field of an
// export request body, lower-cased. It defaults to pdf.
func ExportFormat(options []byte) string {
	var req struct {
		Format string `json:"format"`
	}
	if err := json.Unmarshal(options, &req); err != nil {
		return defaultFormat
	}
	ext := strings.ToLower(strings.TrimSpace(req.Format))
	if ext == "" || strings.IndexFunc(ext, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) >= 0 {
		return defaultFormat
	}
	return ext
}
