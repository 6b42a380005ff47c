package archive

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"uptimewatch/internal/models"
)

const (
	exportTimeLayout = "1/2/2006, 03:04:05 PM"
	ruleWidth        = 80
)

var zoneLabels = map[string]string{
	"America/Chicago":     "CT",
	"America/New_York":    "ET",
	"America/Denver":      "MT",
	"America/Los_Angeles": "PT",
	"UTC":                 "UTC",
}

// ExportFilename names an export produced at now.
func (a *Archiver) ExportFilename() string {
	return "url-status-archive-" + a.now().In(a.loc).Format("2006-01-02") + ".txt"
}

// ExportToText writes the whole archive to w and returns the number of
// entries written. Identical archive contents always produce identical bytes.
func (a *Archiver) ExportToText(ctx context.Context, w io.Writer) (int64, error) {
	targets, err := a.store.GetAllTargets(ctx)
	if err != nil {
		return 0, fmt.Errorf("load targets: %w", err)
	}
	sort.SliceStable(targets, func(i, j int) bool {
		if targets[i].Name == targets[j].Name {
			return targets[i].ID < targets[j].ID
		}
		return targets[i].Name < targets[j].Name
	})

	rule := strings.Repeat("=", ruleWidth)
	thin := strings.Repeat("-", ruleWidth)
	zone := a.zoneLabel()

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "URL Status Archive\n%s\n\n", rule)

	var total int64
	for _, t := range targets {
		entries, err := a.store.ListArchiveEntries(ctx, t.ID)
		if err != nil {
			return total, fmt.Errorf("load archive of target %d: %w", t.ID, err)
		}
		if len(entries) == 0 {
			continue
		}
		total += int64(len(entries))

		fmt.Fprintf(bw, "\nURL: %s\n", t.Name)
		fmt.Fprintf(bw, "Link: %s\n", t.Address)
		fmt.Fprintf(bw, "Total Archived Records: %s\n", humanize.Comma(int64(len(entries))))
		fmt.Fprintf(bw, "%s\n", thin)
		fmt.Fprintf(bw, "%-25s | %-8s | %-6s | %-15s | %s\n", "Timestamp ("+zone+")", "Status", "Code", "Response Time", "Error")
		fmt.Fprintf(bw, "%s\n", thin)
		for _, e := range entries {
			bw.WriteString(a.formatRow(e))
		}
		bw.WriteString("\n")
	}

	fmt.Fprintf(bw, "\n%s\n", rule)
	fmt.Fprintf(bw, "End of Archive - Total URLs: %s\n", humanize.Comma(int64(len(targets))))
	fmt.Fprintf(bw, "Total Archived Records: %s\n", humanize.Comma(total))
	if total == 0 {
		fmt.Fprintf(bw, "\nNote: No archived records found. Records are automatically archived after %d days.\n",
			int(RetentionHorizon/(24*time.Hour)))
	}
	if err := bw.Flush(); err != nil {
		return total, fmt.Errorf("write export: %w", err)
	}
	return total, nil
}

// Export renders the archive into a string.
func (a *Archiver) Export(ctx context.Context) (string, int64, error) {
	var sb strings.Builder
	n, err := a.ExportToText(ctx, &sb)
	if err != nil {
		return "", n, err
	}
	return sb.String(), n, nil
}

func (a *Archiver) formatRow(e models.ArchiveEntry) string {
	status := "DOWN"
	if e.IsUp {
		status = "UP"
	}
	code := "N/A"
	if e.StatusCode.Valid {
		code = strconv.FormatInt(e.StatusCode.Int64, 10)
	}
	latency := "N/A"
	if e.ResponseTimeMS > 0 {
		latency = strconv.FormatInt(e.ResponseTimeMS, 10) + "ms"
	}
	errText := "-"
	if e.ErrorMessage.Valid && e.ErrorMessage.String != "" {
		errText = strings.ReplaceAll(e.ErrorMessage.String, "\n", " ")
	}
	return fmt.Sprintf("%-25s | %-8s | %-6s | %-15s | %s\n",
		e.CheckedAt.In(a.loc).Format(exportTimeLayout), status, code, latency, errText)
}

func (a *Archiver) zoneLabel() string {
	if label, ok := zoneLabels[a.loc.String()]; ok {
		return label
	}
	return a.loc.String()
}
