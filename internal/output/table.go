// Package output provides terminal output utilities for distplan.
//
// This package includes:
//   - Table rendering for plan changes, space requirements and plan history
//   - A stage progress bar for planning runs and a spinner for loading
//   - Human-readable formatting for sizes and dates
//
// Tables use box-drawing rules and ANSI color codes when stdout is a TTY.
package output

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/distplan/internal/cache"
	"github.com/blackwell-systems/distplan/internal/planner"
	"github.com/blackwell-systems/distplan/internal/space"
	"github.com/blackwell-systems/distplan/internal/store"
)

// ANSI color codes for marks and outcomes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

func markColor(mark string) string {
	switch mark {
	case cache.MarkInstall.String():
		return colorGreen
	case cache.MarkUpgrade.String():
		return colorYellow
	case cache.MarkRemove.String(), cache.MarkPurge.String():
		return colorRed
	}
	return colorGray
}

// padColor pads text to width before coloring so columns stay aligned.
func padColor(color, text string, width int) string {
	return colorize(color, fmt.Sprintf("%-*s", width, text))
}

// RenderChangeTable renders the package changes of a plan, grouped by mark
// and sorted by name within a group.
func RenderChangeTable(changes []planner.PackageChange) string {
	if len(changes) == 0 {
		return "Nothing to change.\n"
	}

	sorted := make([]planner.PackageChange, len(changes))
	copy(sorted, changes)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Mark != sorted[j].Mark {
			return sorted[i].Mark < sorted[j].Mark
		}
		return sorted[i].Name < sorted[j].Name
	})

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-32s %-8s %-22s %-22s %s\n",
		"Package", "Action", "From", "To", "Download"))
	sb.WriteString(strings.Repeat("─", 98))
	sb.WriteString("\n")

	for _, ch := range sorted {
		mark := ch.Mark.String()
		if ch.Auto && ch.Mark == cache.MarkInstall {
			mark += "*"
		}
		download := ""
		if ch.DownloadSize > 0 {
			download = formatSize(ch.DownloadSize)
		}
		sb.WriteString(fmt.Sprintf("%-32s %s %-22s %-22s %s\n",
			truncate(ch.Name, 32),
			padColor(markColor(ch.Mark.String()), mark, 8),
			truncate(orDash(ch.From), 22),
			truncate(orDash(ch.To), 22),
			download))
	}

	return sb.String()
}

// RenderSummary renders the one-line count of changes per mark.
// Format: "3 to install, 120 to upgrade, 4 to remove, 0 to purge"
func RenderSummary(p *planner.Plan) string {
	return fmt.Sprintf("%d to install, %d to upgrade, %d to remove, %d to purge",
		p.Count(cache.MarkInstall), p.Count(cache.MarkUpgrade),
		p.Count(cache.MarkRemove), p.Count(cache.MarkPurge))
}

// RenderSpaceTable renders the bytes required per mount point. Deficits
// are highlighted.
func RenderSpaceTable(required map[string]int64, deficits []space.Deficit) string {
	if len(required) == 0 {
		return "No space required.\n"
	}

	short := make(map[string]space.Deficit, len(deficits))
	for _, d := range deficits {
		short[d.MountPoint] = d
	}
	points := make([]string, 0, len(required))
	for mp := range required {
		points = append(points, mp)
	}
	sort.Strings(points)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-24s %-12s %s\n", "Mount", "Required", "Status"))
	sb.WriteString(strings.Repeat("─", 56))
	sb.WriteString("\n")
	for _, mp := range points {
		status := colorize(colorGreen, "ok")
		if d, ok := short[mp]; ok {
			status = colorize(colorRed, fmt.Sprintf("short by %s", formatSize(d.ShortBy)))
		}
		sb.WriteString(fmt.Sprintf("%-24s %-12s %s\n", truncate(mp, 24), formatSize(required[mp]), status))
	}
	return sb.String()
}

// RenderDeficits renders the filesystems that lack room, one per line.
func RenderDeficits(deficits []space.Deficit) string {
	var sb strings.Builder
	for _, d := range deficits {
		sb.WriteString(fmt.Sprintf("  %s needs %s, %s free, short by %s\n",
			d.MountPoint, formatSize(d.Required), formatSize(d.Free), colorize(colorRed, formatSize(d.ShortBy))))
	}
	return sb.String()
}

// RenderNameList renders a titled, wrapped list of package names. An empty
// list renders nothing.
func RenderNameList(title string, names []string) string {
	if len(names) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s (%d):\n", title, len(names)))
	line := " "
	for _, name := range names {
		if len(line)+len(name)+1 > 78 {
			sb.WriteString(line + "\n")
			line = " "
		}
		line += " " + name
	}
	sb.WriteString(line + "\n")
	return sb.String()
}

// RenderHistoryTable renders recorded plans, newest first.
func RenderHistoryTable(plans []*store.Plan) string {
	if len(plans) == 0 {
		return "No recorded plans.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-6s %-16s %-22s %-8s %-10s %s\n",
		"ID", "Created", "Outcome", "Changes", "Download", "Meta"))
	sb.WriteString(strings.Repeat("─", 84))
	sb.WriteString("\n")

	for _, p := range plans {
		meta := p.MetaPackage
		if p.ServerMode {
			meta = "(server)"
		}
		sb.WriteString(fmt.Sprintf("%-6d %-16s %s %-8d %-10s %s\n",
			p.ID,
			formatRelativeTime(p.CreatedAt),
			padColor(outcomeColor(p.Outcome), truncate(p.Outcome, 22), 22),
			p.ChangeCount,
			formatSize(p.DownloadBytes),
			orDash(meta)))
	}

	return sb.String()
}

func outcomeColor(outcome string) string {
	if outcome == planner.KindSuccess {
		return colorGreen
	}
	return colorRed
}

// formatSize converts bytes to a human-readable IEC size.
func formatSize(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
// Anything older than a week is shown as a date.
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	if time.Since(t) > 7*24*time.Hour {
		return t.Local().Format("2006-01-02 15:04")
	}
	return humanize.Time(t)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
