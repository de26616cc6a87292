package funpay

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var months = map[string]time.Month{
	"января":   time.January,
	"февраля":  time.February,
	"марта":    time.March,
	"апреля":   time.April,
	"мая":      time.May,
	"июня":     time.June,
	"июля":     time.July,
	"августа":  time.August,
	"сентября": time.September,
	"октября":  time.October,
	"ноября":   time.November,
	"декабря":  time.December,
}

// parseOrderDate resolves the relative date strings FunPay shows on the
// orders page: "сегодня, ЧЧ:ММ", "вчера, ЧЧ:ММ", "ДД месяца, ЧЧ:ММ" and
// "ДД месяца ГГГГ, ЧЧ:ММ".
//
// When no year is given the current year is assumed. Near a year boundary
// that can be wrong for old orders; the upstream page gives nothing to
// resolve the ambiguity, so the assumption is kept as is.
func parseOrderDate(text string, now time.Time) (time.Time, error) {
	datePart, timePart, ok := strings.Cut(text, ", ")
	if !ok {
		return time.Time{}, fmt.Errorf("no date/time separator in %q", text)
	}
	h, m, err := parseClock(timePart)
	if err != nil {
		return time.Time{}, err
	}

	switch {
	case datePart == "сегодня":
		return time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location()), nil
	case datePart == "вчера":
		d := now.AddDate(0, 0, -1)
		return time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, now.Location()), nil
	}

	fields := strings.Fields(datePart)
	if len(fields) != 2 && len(fields) != 3 {
		return time.Time{}, fmt.Errorf("unexpected date %q", datePart)
	}
	day, err := strconv.Atoi(fields[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("bad day in %q: %w", datePart, err)
	}
	month, ok := months[fields[1]]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown month in %q", datePart)
	}
	year := now.Year()
	if len(fields) == 3 {
		if year, err = strconv.Atoi(fields[2]); err != nil {
			return time.Time{}, fmt.Errorf("bad year in %q: %w", datePart, err)
		}
	}
	return time.Date(year, month, day, h, m, 0, 0, now.Location()), nil
}

func parseClock(s string) (int, int, error) {
	hs, ms, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("bad time %q", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("bad hour %q", s)
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("bad minute %q", s)
	}
	return h, m, nil
}

// parseWaitTime extracts the cooldown from a FunPay "Подождите N ..." raise
// response. Returns seconds, or 0 when the text has no recognizable delay.
func parseWaitTime(msg string) int {
	fields := strings.Fields(msg)
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || i+1 >= len(fields) {
			continue
		}
		unit := strings.TrimRight(fields[i+1], ".,")
		switch {
		case strings.HasPrefix(unit, "секунд"):
			return n
		case strings.HasPrefix(unit, "минут"):
			return n * 60
		case strings.HasPrefix(unit, "час"):
			return n * 3600
		}
	}
	switch {
	case strings.Contains(msg, "секунду"):
		return 1
	case strings.Contains(msg, "минуту"):
		return 60
	case strings.Contains(msg, "час"):
		return 3600
	}
	return 0
}
