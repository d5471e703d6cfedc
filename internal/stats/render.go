package stats

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/verte-zerg/prayerwall/internal/model"
)

const (
	dayLayout           = "2006-01-02"
	terminalWidthBackup = 80
	shortKeyLen         = 8
	barChar             = "█"
	minTitleWidth       = 12
)

// TerminalWidth returns the stdout width, or a fallback when it is not a terminal.
func TerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

// RenderList writes one row per item, fitting titles into width.
func RenderList(w io.Writer, items []model.ItemStats, width int) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "No prayer requests yet.")
		return err
	}
	return writeLines(w, itemTable(items, width))
}

// RenderStats writes totals, the top n items and a daily activity chart.
func RenderStats(w io.Writer, report Report, top, width int) error {
	lines := []string{
		fmt.Sprintf("Requests %d  Prayers %d  Pending %d", len(report.Items), report.Total, report.Pending),
	}
	if topItems := TopPrayers(report.Items, top); len(topItems) > 0 {
		lines = append(lines, "", "Most prayed")
		lines = append(lines, itemTable(topItems, width)...)
	}
	if len(report.Activity) > 0 {
		lines = append(lines, "", "Daily activity")
		lines = append(lines, activityBars(report.Activity, width)...)
	}
	return writeLines(w, lines)
}

func itemTable(items []model.ItemStats, width int) []string {
	headers := []string{"Key", "Count", "Pending", "Prayed", "Title"}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		prayed := ""
		if item.Prayed {
			prayed = "yes"
		}
		rows = append(rows, []string{
			shortKey(item.Key),
			strconv.FormatInt(item.Count, 10),
			strconv.Itoa(item.Pending),
			prayed,
			item.Title,
		})
	}

	fixed := displayWidth(headers[0])
	for _, row := range rows {
		if w := displayWidth(row[0]); w > fixed {
			fixed = w
		}
	}
	for _, h := range headers[1:4] {
		fixed += displayWidth(h) + 1
	}
	titleWidth := width - fixed - 1
	if titleWidth < minTitleWidth {
		titleWidth = minTitleWidth
	}
	for _, row := range rows {
		row[4] = truncateCell(row[4], titleWidth)
	}
	return formatTable(headers, rows, map[int]bool{1: true, 2: true})
}

func activityBars(activity []model.DailyActivity, width int) []string {
	maxCount := 0
	for _, a := range activity {
		if a.Increments > maxCount {
			maxCount = a.Increments
		}
	}
	countWidth := len(strconv.Itoa(maxCount))
	barWidth := width - len(dayLayout) - countWidth - 10
	if barWidth < 1 {
		barWidth = 1
	}
	lines := make([]string, 0, len(activity))
	for _, a := range activity {
		n := 0
		if maxCount > 0 {
			n = a.Increments * barWidth / maxCount
		}
		if a.Increments > 0 && n == 0 {
			n = 1
		}
		lines = append(lines, fmt.Sprintf("%s %*d %+d %s",
			a.Day.Format(dayLayout), countWidth, a.Increments, a.Net, strings.Repeat(barChar, n)))
	}
	return lines
}

func shortKey(key string) string {
	if len(key) <= shortKeyLen {
		return key
	}
	return key[:shortKeyLen]
}

func writeLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, strings.TrimRight(line, " ")); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}
