// Package timecode parses and formats FFmpeg time duration syntax.
//
// FFmpeg accepts durations either as `[-][HH:]MM:SS[.frac]` or as
// `[-]S+[.frac]` with an optional `s`, `ms`, or `us` unit suffix. See
// https://ffmpeg.org/ffmpeg-utils.html#Time-duration for the grammar.
// Values are carried as integer microseconds, matching FFmpeg's own
// internal representation.
package timecode

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	microsPerSec   = 1_000_000
	microsPerMilli = 1_000
)

// ErrInvalid is returned when a string does not match the FFmpeg time
// duration grammar. "N/A" is also invalid; callers that treat it as
// "unknown" should check for it first.
var ErrInvalid = errors.New("timecode: invalid time duration")

// Timecode is an FFmpeg time duration, stored in microseconds.
type Timecode int64

// FromMicros builds a Timecode from microseconds.
func FromMicros(us int64) Timecode { return Timecode(us) }

// FromSeconds builds a Timecode from fractional seconds.
func FromSeconds(sec float64) Timecode {
	return Timecode(int64(math.Round(sec * microsPerSec)))
}

// FromDuration converts a time.Duration, truncating to microseconds.
func FromDuration(d time.Duration) Timecode {
	return Timecode(d.Microseconds())
}

// Micros returns the duration in microseconds.
func (t Timecode) Micros() int64 { return int64(t) }

// Seconds returns the duration in fractional seconds.
func (t Timecode) Seconds() float64 { return float64(t) / microsPerSec }

// Duration converts to a time.Duration.
func (t Timecode) Duration() time.Duration {
	return time.Duration(t) * time.Microsecond
}

// String formats the duration as `[-]HH:MM:SS.micros`, which FFmpeg
// accepts anywhere a time duration is expected.
func (t Timecode) String() string {
	us := int64(t)
	sign := ""
	if us < 0 {
		sign = "-"
		us = -us
	}
	secs := us / microsPerSec
	frac := us % microsPerSec
	return fmt.Sprintf("%s%02d:%02d:%02d.%06d",
		sign, secs/3600, (secs/60)%60, secs%60, frac)
}

// Parse parses an FFmpeg time duration string.
func Parse(s string) (Timecode, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalid
	}

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}

	var us int64
	switch {
	case strings.HasSuffix(s, "us"):
		v, err := parseFloat(strings.TrimSuffix(s, "us"))
		if err != nil {
			return 0, err
		}
		us = int64(v)
	case strings.HasSuffix(s, "ms"):
		v, err := parseFloat(strings.TrimSuffix(s, "ms"))
		if err != nil {
			return 0, err
		}
		us = int64(v * microsPerMilli)
	case strings.Contains(s, ":"):
		sec, err := parseClock(s)
		if err != nil {
			return 0, err
		}
		us = int64(math.Round(sec * microsPerSec))
	default:
		v, err := parseFloat(strings.TrimSuffix(s, "s"))
		if err != nil {
			return 0, err
		}
		us = int64(math.Round(v * microsPerSec))
	}

	if negative {
		us = -us
	}
	return Timecode(us), nil
}

// ParseSeconds parses an FFmpeg time duration and returns fractional
// seconds. It accepts everything Parse accepts.
func ParseSeconds(s string) (float64, error) {
	t, err := Parse(s)
	if err != nil {
		return 0, err
	}
	return t.Seconds(), nil
}

// parseClock parses `[HH:]MM:SS[.frac]` (each segment may omit leading
// zeroes) into seconds.
func parseClock(s string) (float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, ErrInvalid
	}

	// Walk from the seconds segment backwards, scaling by 60 each step.
	var seconds float64
	mult := 1.0
	for i := len(parts) - 1; i >= 0; i-- {
		v, err := parseFloat(parts[i])
		if err != nil {
			return 0, err
		}
		seconds += v * mult
		mult *= 60
	}
	return seconds, nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return v, nil
}
