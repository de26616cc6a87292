package funpay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderDate(t *testing.T) {
	now := time.Date(2024, time.March, 15, 18, 30, 0, 0, time.UTC)

	cases := []struct {
		text string
		want time.Time
	}{
		{"сегодня, 14:05", time.Date(2024, time.March, 15, 14, 5, 0, 0, time.UTC)},
		{"вчера, 23:59", time.Date(2024, time.March, 14, 23, 59, 0, 0, time.UTC)},
		{"2 января, 09:00", time.Date(2024, time.January, 2, 9, 0, 0, 0, time.UTC)},
		{"28 декабря 2022, 11:30", time.Date(2022, time.December, 28, 11, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := parseOrderDate(tc.text, now)
		require.NoError(t, err, tc.text)
		assert.Equal(t, tc.want, got, tc.text)
	}
}

func TestParseOrderDateRejectsGarbage(t *testing.T) {
	now := time.Now()
	for _, text := range []string{"", "вчера", "32 мартобря, 10:00", "сегодня, 25:99", "10 января"} {
		_, err := parseOrderDate(text, now)
		assert.Error(t, err, text)
	}
}

func TestParseWaitTime(t *testing.T) {
	cases := []struct {
		msg  string
		want int
	}{
		{"Подождите 30 секунд.", 30},
		{"Подождите 5 минут.", 300},
		{"Подождите 2 часа.", 7200},
		{"Подождите минуту.", 60},
		{"Подождите секунду.", 1},
		{"Подождите час.", 3600},
		{"что-то совсем другое", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, parseWaitTime(tc.msg), tc.msg)
	}
}
