// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package pagecounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brawer/wikiviews/internal/views"
)

var hour0 = time.Date(2015, 9, 1, 0, 0, 0, 0, time.UTC)

func at(h int, v int64) views.Sample {
	return views.Sample{Time: hour0.Add(time.Duration(h) * time.Hour), Views: v}
}

func TestStore(t *testing.T) {
	store := openTestStore(t)
	w := store.NewWriter()
	if err := w.Merge("en", "Foo", []views.Sample{at(0, 10), at(1, 20), at(2, 5), at(4, 15)}); err != nil {
		t.Fatal(err)
	}
	if err := w.Merge("en", "Foo", []views.Sample{at(2, 6), at(5, 1)}); err != nil {
		t.Fatal(err)
	}
	if err := w.Merge("en", "Foo_Bar", []views.Sample{at(-3, 1)}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if got, want := search(t, store, "en", "Foo"), "01T00=10 01T01=20 01T02=6 01T04=15 01T05=1"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got, want := search(t, store, "en", "Foo_Bar"), "31T21=1"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestStore_Canceled(t *testing.T) {
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Search(ctx, "en", "Foo"); !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", err)
	}
}

// The store can serve as sample source for counting views.
func TestStore_Counter(t *testing.T) {
	store := openTestStore(t)
	w := store.NewWriter()
	if err := w.Merge("en", "Foo_Bar", []views.Sample{at(0, 10), at(1, 20), at(2, 5), at(4, 15)}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	counter, err := views.NewCounter(store, views.Options{})
	if err != nil {
		t.Fatal(err)
	}
	start := views.At(hour0)
	end := views.At(hour0.Add(210 * time.Minute))
	got, err := counter.Count(context.Background(), "en", "Foo Bar", start, end)
	if err != nil {
		t.Fatal(err)
	}
	if got != 32.5 {
		t.Errorf("got %v, want 32.5", got)
	}
}

func TestDecodeSamples_Corrupt(t *testing.T) {
	good := EncodeSamples([]views.Sample{at(0, 10), at(3, 300)})
	for _, b := range [][]byte{
		nil,
		{0x80},
		good[:len(good)-1],
		append(good, 7),
		{0x05, 0x02},
	} {
		if _, err := DecodeSamples(b); err == nil {
			t.Errorf("DecodeSamples(%v): want error, got nil", b)
		}
	}

	samples, err := DecodeSamples(EncodeSamples(nil))
	if err != nil || len(samples) != 0 {
		t.Errorf("got %v, %v; want no samples", samples, err)
	}
}

func TestMergeSamples(t *testing.T) {
	for _, tc := range []struct {
		older, newer []views.Sample
		want         string
	}{
		{nil, nil, ""},
		{[]views.Sample{at(0, 1)}, nil, "01T00=1"},
		{nil, []views.Sample{at(0, 1)}, "01T00=1"},
		{[]views.Sample{at(0, 1), at(2, 2)}, []views.Sample{at(1, 3), at(2, 4), at(3, 5)}, "01T00=1 01T01=3 01T02=4 01T03=5"},
	} {
		if got := formatSamples(mergeSamples(tc.older, tc.newer)); got != tc.want {
			t.Errorf("got %q, want %q", got, tc.want)
		}
	}
}
