// SPDX-FileCopyrightText: 2022 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package pagecounts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brawer/wikiviews/internal/compressed"
	"github.com/brawer/wikiviews/internal/views"
)

func writeDump(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	w, err := compressed.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(w, content); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func formatSamples(samples []views.Sample) string {
	parts := make([]string, 0, len(samples))
	for _, s := range samples {
		parts = append(parts, fmt.Sprintf("%s=%d", s.Time.UTC().Format("02T15"), s.Views))
	}
	return strings.Join(parts, " ")
}

func search(t *testing.T, store *Store, project, title string) string {
	t.Helper()
	samples, err := store.Search(context.Background(), project, title)
	if err != nil {
		t.Fatal(err)
	}
	return formatSamples(samples)
}

func TestIngest(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeDump(t, dir, "pageviews-20150901-000000.gz",
			"en Foo_Bar 10 0\n"+
				"en Foo%20Bar 2 0\n"+
				"de Z%C3%BCrich 4 0\n"+
				"en.m Foo_Bar 1 0\n"+
				"only three\n"+
				"en Broken notanumber 0\n"),
		writeDump(t, dir, "pageviews-20150901-010000.bz2",
			"en Foo_Bar 20 0\n"+
				"de Zürich 5 0\n"),
		writeDump(t, dir, "pageviews-20150901-030000.zst",
			"en Foo_Bar 15 0\n"+
				"en Zero 0 0\n"),
	}

	var logbuf bytes.Buffer
	store := openTestStore(t)
	stats, err := Ingest(context.Background(), store, paths, IngestOptions{
		Logger: log.New(&logbuf, "", 0),
	})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Files != 3 || stats.Pages != 3 || stats.Lines != 7 {
		t.Errorf("got %+v, want 3 files, 3 pages, 7 lines", stats)
	}

	for _, tc := range []struct{ project, title, want string }{
		{"en", "Foo_Bar", "01T00=12 01T01=20 01T03=15"},
		{"en.m", "Foo_Bar", "01T00=1"},
		{"de", "Zürich", "01T00=4 01T01=5"},
		{"en", "Zero", ""},
		{"fr", "Foo_Bar", ""},
	} {
		if got := search(t, store, tc.project, tc.title); got != tc.want {
			t.Errorf("%s/%s: got %q, want %q", tc.project, tc.title, got, tc.want)
		}
	}

	if !strings.Contains(logbuf.String(), "ingested 3 dump files") {
		t.Errorf("expected log message, got %q", logbuf.String())
	}
}

func TestIngest_Twice(t *testing.T) {
	dir := t.TempDir()
	first := writeDump(t, dir, "pageviews-20150901-000000.gz", "en Foo 10 0\n")
	second := writeDump(t, dir, "pageviews-20150901-020000.gz", "en Foo 7 0\n")
	store := openTestStore(t)
	ctx := context.Background()
	for _, paths := range [][]string{{first}, {first, second}, {second}} {
		if _, err := Ingest(ctx, store, paths, IngestOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := search(t, store, "en", "Foo"), "01T00=10 01T02=7"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestIngest_Projects(t *testing.T) {
	dir := t.TempDir()
	path := writeDump(t, dir, "pageviews-20150901-000000", "en Foo 10 0\nde Foo 3 0\n")
	store := openTestStore(t)
	opts := IngestOptions{Projects: []string{"de"}}
	if _, err := Ingest(context.Background(), store, []string{path}, opts); err != nil {
		t.Fatal(err)
	}
	if got := search(t, store, "en", "Foo"); got != "" {
		t.Errorf("got %q for en/Foo, want nothing", got)
	}
	if got := search(t, store, "de", "Foo"); got != "01T00=3" {
		t.Errorf("got %q for de/Foo, want 01T00=3", got)
	}
}

func TestIngest_BadFileName(t *testing.T) {
	dir := t.TempDir()
	path := writeDump(t, dir, "pageviews.gz", "en Foo 10 0\n")
	if _, err := Ingest(context.Background(), openTestStore(t), []string{path}, IngestOptions{}); err == nil {
		t.Error("want error, got nil")
	}
}

func TestIngest_Misaligned(t *testing.T) {
	dir := t.TempDir()
	path := writeDump(t, dir, "pageviews-20150901-003000.gz", "en Foo 10 0\n")
	if _, err := Ingest(context.Background(), openTestStore(t), []string{path}, IngestOptions{}); err == nil {
		t.Error("want error, got nil")
	}
}

func TestDumpTime(t *testing.T) {
	for _, tc := range []struct{ path, want string }{
		{"pageviews-20150901-010000.gz", "2015-09-01T01:00:00Z"},
		{"/dumps/2015/2015-09/pagecounts-20150901-230000.bz2", "2015-09-01T23:00:00Z"},
		{"pageviews-20150901-010000", "2015-09-01T01:00:00Z"},
	} {
		got, err := DumpTime(tc.path)
		if err != nil {
			t.Errorf("%s: %v", tc.path, err)
			continue
		}
		if s := got.Format(time.RFC3339); s != tc.want {
			t.Errorf("%s: got %s, want %s", tc.path, s, tc.want)
		}
	}
}
