// Package storage persists the news archive: the per-month corpus of rendered
// entries and the per-day documents, either as markdown files or in SQL.
package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a day document does not exist.
var ErrNotFound = errors.New("not found")

const (
	// MonthHeader opens a month corpus file.
	MonthHeader = "# 本月新闻"
	monthFile   = "00.md"
)

// DayHeader is the first line of a freshly created day document.
func DayHeader(day time.Time) string {
	return "# 今日新闻 - " + day.Format("2006年01月02日")
}

func monthKey(t time.Time) string { return t.Format("2006-01") }
func dayKey(t time.Time) string   { return t.Format("2006-01-02") }
