package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	got, err := ParseDate(" 2024-03-01 ")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseDate("01/03/2024")
	require.Error(t, err)
}

func TestCanonicalDatetime(t *testing.T) {
	cases := map[string]string{
		"2024-05-06T13:14:15.678Z":      "2024-05-06 13:14:15",
		"2024-05-06T13:14:15Z":          "2024-05-06 13:14:15",
		"2024-05-06T13:14:15.678+02:00": "2024-05-06 13:14:15",
		"2024-05-06T13:14":              "2024-05-06 13:14",
		"":                              "",
	}
	for in, want := range cases {
		require.Equal(t, want, CanonicalDatetime(in), in)
	}
}

func TestDayOfAndHTTPTime(t *testing.T) {
	ts := time.Date(2024, 1, 2, 23, 59, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), DayOf(ts))
	require.Equal(t, "Tue, 02 Jan 2024 23:59:00 GMT", HTTPTime(ts))
}
