package report

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"time"
)

var csvHeader = []string{
	"Timestamp", "Event Type", "Severity", "Description", "Duration (ms)",
	"Confidence (%)", "Candidate Name", "Candidate Email", "Position",
}

// WriteCSV writes the report timeline, one row per event
func WriteCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range r.Timeline {
		duration := ""
		if e.DurationMs > 0 {
			duration = strconv.FormatInt(e.DurationMs, 10)
		}
		confidence := ""
		if e.Confidence != nil && *e.Confidence > 0 {
			confidence = strconv.Itoa(int(math.Round(*e.Confidence * 100)))
		}
		row := []string{
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			string(e.Type),
			string(e.Severity),
			e.Description,
			duration,
			confidence,
			r.Candidate.Name,
			r.Candidate.Email,
			r.Candidate.Position,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVFilename is the download name for a candidate's report
func CSVFilename(r Report, now time.Time) string {
	name := r.Candidate.Name
	if name == "" {
		name = r.Session.ID
	}
	out := make([]rune, 0, len(name))
	space := false
	for _, c := range name {
		if c == ' ' || c == '\t' || c == '\n' {
			if !space {
				out = append(out, '-')
			}
			space = true
			continue
		}
		space = false
		out = append(out, c)
	}
	return "proctoring-report-" + string(out) + "-" + strconv.FormatInt(now.UnixMilli(), 10) + ".csv"
}
