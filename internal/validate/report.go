package validate

import (
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"
)

// WriteReport renders res as the human-readable summary appended to the
// error log.
func WriteReport(w io.Writer, res Result) error {
	status := "OK"
	if res.Fatal != nil {
		status = "FAILED"
	}
	checks := "enabled"
	if !res.PassageChecks {
		checks = "skipped"
	}

	lines := []string{
		"Validation summary",
		fmt.Sprintf("  session:          %s", res.SessionID),
		fmt.Sprintf("  run:              %s", res.RunName),
		fmt.Sprintf("  turns validated:  %s/%s", humanize.Comma(int64(res.TurnsValidated)), humanize.Comma(int64(res.TotalTurns))),
		fmt.Sprintf("  warnings:         %s", humanize.Comma(int64(res.Warnings))),
		fmt.Sprintf("  service errors:   %s", humanize.Comma(int64(res.ServiceErrors))),
		fmt.Sprintf("  passage checks:   %s", checks),
		fmt.Sprintf("  status:           %s", status),
	}
	if res.Fatal != nil {
		lines = append(lines, fmt.Sprintf("  fatal:            %s", res.Fatal))
	}

	if len(res.WarningsByCode) > 0 {
		codes := make([]Code, 0, len(res.WarningsByCode))
		for c := range res.WarningsByCode {
			codes = append(codes, c)
		}
		sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

		lines = append(lines, "", "Warnings by code")
		for _, c := range codes {
			lines = append(lines, fmt.Sprintf("  %-20s %s", c, humanize.Comma(int64(res.WarningsByCode[c]))))
		}
	}

	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// Summary is the one-line completion message.
func (r Result) Summary() string {
	return fmt.Sprintf("Validation completed on %d/%d turns with %d warnings, %d service errors",
		r.TurnsValidated, r.TotalTurns, r.Warnings, r.ServiceErrors)
}
