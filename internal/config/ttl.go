package config

import (
	"errors"
	"regexp"
	"strconv"
	"time"
)

// ErrNotATTL is returned by ParseTTL when the string isn't a recognized
// duration: digits optionally followed by one of s/m/h/d/w.
var ErrNotATTL = errors.New("config: not a TTL duration")

var ttlPattern = regexp.MustCompile(`^(\d+)([smhdw])?$`)

// ParseTTL parses a duration string of the form "30", "30s", "5m", "2h",
// "1d" or "1w" (no unit defaults to seconds).
func ParseTTL(s string) (time.Duration, error) {
	m := ttlPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, ErrNotATTL
	}
	n, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return 0, err
	}

	var unit time.Duration
	switch m[2] {
	case "", "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	}
	return time.Duration(n) * unit, nil
}
