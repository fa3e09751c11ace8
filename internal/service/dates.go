package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rongwang/land-rental-server/internal/apperror"
)

const dateLayout = "2006-01-02"

// ParseCalendarDate accepts YYYY-MM-DD and only real dates (no Feb 30)
func ParseCalendarDate(raw string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, apperror.Validation("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return t, nil
}

// AddMonthsClamped adds months and clamps the day to the end of the target
// month, so Jan 31 + 1 month is Feb 28 (or 29) instead of early March.
func AddMonthsClamped(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, months, 0)
	day := t.Day()
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// newContractNumber formats CON-YYYYMMDD-XXXXXXXX
func newContractNumber(day time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("CON-%s-%s", day.Format("20060102"), suffix)
}
