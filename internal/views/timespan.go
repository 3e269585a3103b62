// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package views

import (
	"fmt"
	"strings"
	"time"
)

// Bound is one end of a TimeSpan. The zero Bound is unbounded.
type Bound struct {
	t       time.Time
	bounded bool
}

// Unbounded returns a Bound that does not limit its TimeSpan.
func Unbounded() Bound {
	return Bound{}
}

// At returns a Bound at instant t.
func At(t time.Time) Bound {
	return Bound{t: t, bounded: true}
}

// IsBounded reports whether b denotes a concrete instant.
func (b Bound) IsBounded() bool {
	return b.bounded
}

// Time returns the instant of a bounded Bound, and the zero time otherwise.
func (b Bound) Time() time.Time {
	return b.t
}

func (b Bound) String() string {
	if !b.bounded {
		return "unbounded"
	}
	return b.t.UTC().Format(time.RFC3339)
}

// TimeSpan is a closed interval of time whose ends may be open-ended.
type TimeSpan struct {
	Start Bound
	End   Bound
}

// Forever is the TimeSpan without any limits.
var Forever = TimeSpan{}

func (s TimeSpan) String() string {
	return fmt.Sprintf("[%s, %s]", s.Start, s.End)
}

// Reversed reports whether both bounds are set and End lies before Start.
func (s TimeSpan) Reversed() bool {
	return s.Start.bounded && s.End.bounded && s.End.t.Before(s.Start.t)
}

// Intersects reports whether all passed spans share at least one instant.
// The tightest start is compared against the tightest end, so spans that
// merely touch at a single instant do intersect.
func Intersects(spans ...TimeSpan) bool {
	var start, end Bound
	for _, s := range spans {
		if s.Start.bounded && (!start.bounded || s.Start.t.After(start.t)) {
			start = s.Start
		}
		if s.End.bounded && (!end.bounded || s.End.t.Before(end.t)) {
			end = s.End
		}
		if start.bounded && end.bounded && start.t.After(end.t) {
			return false
		}
	}
	return true
}

// Layouts accepted by ParseTimestamp, tried in order. Layouts without
// a zone are interpreted in UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"20060102150405",
	"20060102",
}

// ParseTimestamp parses the loosely ISO 8601 timestamps found in input
// records and on the command line. Timestamps without a zone are in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp %q", s)
}

// ParseBound parses a timestamp, treating the empty string as unbounded.
func ParseBound(s string) (Bound, error) {
	if strings.TrimSpace(s) == "" {
		return Unbounded(), nil
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return Bound{}, err
	}
	return At(t), nil
}
