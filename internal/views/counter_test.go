// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package views

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"testing"
	"time"
)

// FakeSource is a SampleSource for testing. It keeps samples
// in memory, keyed by "project/title", and counts searches.
type FakeSource struct {
	samples  map[string][]Sample
	searches map[string]int
	err      error
}

func NewFakeSource() *FakeSource {
	return &FakeSource{
		samples:  make(map[string][]Sample, 10),
		searches: make(map[string]int, 10),
	}
}

func (f *FakeSource) Search(ctx context.Context, project, title string) ([]Sample, error) {
	key := project + "/" + title
	f.searches[key] += 1
	if f.err != nil {
		return nil, f.err
	}
	return f.samples[key], nil
}

// FakeRedirects is a RedirectStore for testing.
type FakeRedirects struct {
	redirects map[string][]int64
	titles    map[int64]string
}

func (f *FakeRedirects) Redirects(ctx context.Context, title string) ([]int64, error) {
	return f.redirects[title], nil
}

func (f *FakeRedirects) Title(ctx context.Context, page int64) (string, error) {
	if t, ok := f.titles[page]; ok {
		return t, nil
	}
	return "", fmt.Errorf("page %d: %w", page, ErrPageNotFound)
}

func newTestCounter(t *testing.T, source SampleSource, opts Options) *Counter {
	t.Helper()
	c, err := NewCounter(source, opts)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCount(t *testing.T) {
	source := NewFakeSource()
	source.samples["en/Foo_Bar"] = testSamples()
	c := newTestCounter(t, source, Options{})
	ctx := context.Background()

	for _, tc := range []struct {
		start, end Bound
		want       float64
	}{
		{At(hour(0)), At(hour(3.5)), 32.5},
		{Unbounded(), Unbounded(), 50},
		{Unbounded(), At(hour(1)), 30},
		{At(hour(1)), Unbounded(), 20},
		{At(hour(-30)), At(hour(-20)), 0},
		{At(hour(20)), At(hour(30)), 0},
		{At(hour(-30)), At(hour(30)), 50},
		{At(hour(2)), At(hour(2)), 0},
	} {
		got, err := c.Count(ctx, "en", "Foo Bar", tc.start, tc.end)
		if err != nil {
			t.Errorf("Count(%v, %v) failed: %v", tc.start, tc.end, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Count(%v, %v): got %v, want %v", tc.start, tc.end, got, tc.want)
		}
	}

	if n := source.searches["en/Foo_Bar"]; n != 1 {
		t.Errorf("expected 1 search thanks to caching, got %d", n)
	}
}

func TestCount_Additive(t *testing.T) {
	source := NewFakeSource()
	source.samples["en/Foo"] = testSamples()
	c := newTestCounter(t, source, Options{})
	ctx := context.Background()
	count := func(a, b float64) float64 {
		n, err := c.Count(ctx, "en", "Foo", At(hour(a)), At(hour(b)))
		if err != nil {
			t.Fatal(err)
		}
		return n
	}
	for _, tc := range [][3]float64{{-1, 2, 5}, {0, 1, 4}, {0, 3, 3}} {
		whole := count(tc[0], tc[2])
		parts := count(tc[0], tc[1]) + count(tc[1], tc[2])
		if math.Abs(whole-parts) > 1e-9 {
			t.Errorf("%v: got %v + %v, want %v", tc, count(tc[0], tc[1]), count(tc[1], tc[2]), whole)
		}
	}
}

func TestCount_NoData(t *testing.T) {
	var logbuf bytes.Buffer
	source := NewFakeSource()
	c := newTestCounter(t, source, Options{Logger: log.New(&logbuf, "", 0)})
	ctx := context.Background()
	for _, span := range []TimeSpan{
		Forever,
		{At(hour(0)), At(hour(3))},
		{Unbounded(), At(hour(3))},
		{At(hour(3)), Unbounded()},
	} {
		got, err := c.Count(ctx, "de", "Nirgendwo", span.Start, span.End)
		if err != nil {
			t.Errorf("%v: %v", span, err)
		}
		if got != 0 {
			t.Errorf("%v: got %v, want 0", span, got)
		}
	}
	if !strings.Contains(logbuf.String(), "no samples found for de/Nirgendwo") {
		t.Errorf("missing samples should be logged, got %q", logbuf.String())
	}
}

func TestCount_Period(t *testing.T) {
	source := NewFakeSource()
	source.samples["en/Foo"] = testSamples()
	period := TimeSpan{At(hour(0)), At(hour(24))}
	c := newTestCounter(t, source, Options{Period: period})
	ctx := context.Background()

	got, err := c.Count(ctx, "en", "Foo", At(hour(30)), At(hour(40)))
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("got %v, want 0", got)
	}
	if n := source.searches["en/Foo"]; n != 0 {
		t.Errorf("queries outside the period should not search, got %d searches", n)
	}

	// Inside the period but after the last sample: flat total.
	got, err = c.Count(ctx, "en", "Foo", At(hour(0)), At(hour(20)))
	if err != nil {
		t.Fatal(err)
	}
	if got != 40 {
		t.Errorf("got %v, want 40", got)
	}
}

func TestCount_ReversedSpan(t *testing.T) {
	source := NewFakeSource()
	source.samples["en/Foo"] = testSamples()
	c := newTestCounter(t, source, Options{})
	_, err := c.Count(context.Background(), "en", "Foo", At(hour(3)), At(hour(1)))
	if !errors.Is(err, ErrReversedSpan) {
		t.Errorf("want ErrReversedSpan, got %v", err)
	}
}

func TestCount_SourceError(t *testing.T) {
	source := NewFakeSource()
	source.err = errors.New("connection refused")
	c := newTestCounter(t, source, Options{})
	_, err := c.Count(context.Background(), "en", "Foo", Unbounded(), Unbounded())
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("want error with cause, got %v", err)
	}

	// Failures must not be cached.
	source.err = nil
	source.samples["en/Foo"] = testSamples()
	got, err := c.Count(context.Background(), "en", "Foo", Unbounded(), Unbounded())
	if err != nil {
		t.Fatal(err)
	}
	if got != 50 {
		t.Errorf("got %v, want 50", got)
	}
}

func TestCount_GridError(t *testing.T) {
	source := NewFakeSource()
	source.samples["en/Foo"] = []Sample{{hour(0), 1}, {hour(0.5), 1}}
	c := newTestCounter(t, source, Options{})
	_, err := c.Count(context.Background(), "en", "Foo", Unbounded(), Unbounded())
	if !errors.Is(err, ErrInconsistentGrid) {
		t.Errorf("want ErrInconsistentGrid, got %v", err)
	}
}

func TestCount_Granularity(t *testing.T) {
	source := NewFakeSource()
	source.samples["en/Foo"] = []Sample{
		{day, 100},
		{day.Add(24 * time.Hour), 200},
	}
	c := newTestCounter(t, source, Options{Granularity: 24 * time.Hour})
	got, err := c.Count(context.Background(), "en", "Foo", At(day), At(day.Add(12*time.Hour)))
	if err != nil {
		t.Fatal(err)
	}
	if got != 100 {
		t.Errorf("got %v, want 100", got)
	}
}

func TestCounterCacheEviction(t *testing.T) {
	source := NewFakeSource()
	c := newTestCounter(t, source, Options{CacheSize: 2})
	ctx := context.Background()
	for _, title := range []string{"A", "B", "A", "C", "B", "A"} {
		if _, err := c.Count(ctx, "en", title, Unbounded(), Unbounded()); err != nil {
			t.Fatal(err)
		}
	}
	got := fmt.Sprintf("A=%d B=%d C=%d",
		source.searches["en/A"], source.searches["en/B"], source.searches["en/C"])
	if want := "A=2 B=2 C=1"; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestCountForPage(t *testing.T) {
	source := NewFakeSource()
	source.samples["en/Zürich"] = []Sample{{hour(0), 10}, {hour(1), 10}}
	source.samples["en/Zurich"] = []Sample{{hour(5), 7}}
	source.samples["en/Zurigo"] = []Sample{{hour(2), 3}, {hour(3), 4}}
	redirects := &FakeRedirects{
		redirects: map[string][]int64{"Zürich": {11, 12, 13}},
		titles:    map[int64]string{11: "Zurich", 12: "Zurigo"},
	}
	c := newTestCounter(t, source, Options{})
	ctx := context.Background()

	for _, span := range []TimeSpan{
		Forever,
		{At(hour(0.5)), At(hour(2.5))},
		{At(hour(-10)), At(hour(4))},
	} {
		got, err := c.CountForPage(ctx, redirects, "en", "Zürich", span.Start, span.End)
		if err != nil {
			t.Fatal(err)
		}
		var want float64
		for _, title := range []string{"Zürich", "Zurich", "Zurigo"} {
			n, err := c.Count(ctx, "en", title, span.Start, span.End)
			if err != nil {
				t.Fatal(err)
			}
			want += n
		}
		if got != want {
			t.Errorf("%v: got %v, want %v", span, got, want)
		}
	}

	got, err := c.CountForPage(ctx, redirects, "en", "Zürich", Unbounded(), Unbounded())
	if err != nil {
		t.Fatal(err)
	}
	if got != 34 {
		t.Errorf("got %v, want 34", got)
	}
}

func TestResolveAliases(t *testing.T) {
	var logbuf bytes.Buffer
	redirects := &FakeRedirects{
		redirects: map[string][]int64{"Foo_Bar": {1, 2, 3}},
		titles:    map[int64]string{1: "Foo bar", 3: "FooBar"},
	}
	got, err := ResolveAliases(context.Background(), redirects, "Foo Bar", log.New(&logbuf, "", 0))
	if err != nil {
		t.Fatal(err)
	}
	if s, want := strings.Join(got, "|"), "Foo_bar|FooBar|Foo_Bar"; s != want {
		t.Errorf("got %q, want %q", s, want)
	}
	if !strings.Contains(logbuf.String(), "redirect 2") {
		t.Errorf("missing redirect page should be logged, got %q", logbuf.String())
	}
}
