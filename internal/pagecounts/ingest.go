// SPDX-FileCopyrightText: 2022 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package pagecounts

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/lanrat/extsort"
	"golang.org/x/sync/errgroup"

	"github.com/brawer/wikiviews/internal/compressed"
	"github.com/brawer/wikiviews/internal/views"
)

const timeFormat = "20060102150405"

// Hourly dumps are named like pageviews-20150901-010000.gz
// or pagecounts-20150901-010000.gz.
var dumpNameRegexp = regexp.MustCompile(`(\d{8})-(\d{6})(\.[a-z0-9]+)?$`)

// DumpTime returns the start of the hour covered by a dump file,
// derived from its file name.
func DumpTime(path string) (time.Time, error) {
	m := dumpNameRegexp.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return time.Time{}, fmt.Errorf("cannot determine time of %s", path)
	}
	return time.Parse(timeFormat, m[1]+m[2])
}

type IngestOptions struct {
	// Granularity of the dump files; all file times must be
	// aligned to it. If zero, one hour is used.
	Granularity time.Duration

	// Projects, such as "en" or "de", to keep. If empty,
	// all projects are ingested.
	Projects []string

	Logger *log.Logger
}

// IngestStats tells what Ingest has done.
type IngestStats struct {
	Files int
	Lines int64
	Pages int64
}

// Ingest reads hourly pageview dump files and merges their view
// counts into a Store. Lines have the format "project title views bytes".
func Ingest(ctx context.Context, store *Store, paths []string, opts IngestOptions) (IngestStats, error) {
	var stats IngestStats
	granularity := opts.Granularity
	if granularity == 0 {
		granularity = time.Hour
	}

	times := make([]time.Time, len(paths))
	for i, path := range paths {
		t, err := DumpTime(path)
		if err != nil {
			return stats, err
		}
		if t.Truncate(granularity) != t {
			return stats, fmt.Errorf("%s: time %s not aligned to %s", path, t.Format(time.RFC3339), granularity)
		}
		times[i] = t
	}

	var projects map[string]bool
	if len(opts.Projects) > 0 {
		projects = make(map[string]bool, len(opts.Projects))
		for _, p := range opts.Projects {
			projects[p] = true
		}
	}

	logf := func(format string, args ...any) {
		if opts.Logger != nil {
			opts.Logger.Printf(format, args...)
		}
	}
	start := time.Now()

	linesChan := make(chan string, 10000)
	config := extsort.DefaultConfig()
	config.ChunkSize = 8 * 1024 * 1024 / 64 // 8 MiB, 64 Bytes/line avg
	config.NumWorkers = runtime.NumCPU()
	sorter, outChan, errChan := extsort.Strings(linesChan, config)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer close(linesChan)
		readers, readersCtx := errgroup.WithContext(groupCtx)
		readers.SetLimit(runtime.NumCPU())
		for i, path := range paths {
			path, t := path, times[i]
			readers.Go(func() error {
				r, err := compressed.Open(path)
				if err != nil {
					return err
				}
				defer r.Close()
				if err := readDump(readersCtx, r, t, projects, linesChan); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				return nil
			})
		}
		return readers.Wait()
	})
	group.Go(func() error {
		sorter.Sort(groupCtx)
		writer := store.NewWriter()
		defer writer.Discard()
		merger := &sampleMerger{writer: writer}
		for {
			select {
			case <-groupCtx.Done():
				return groupCtx.Err()

			case line, more := <-outChan:
				if !more {
					if err := merger.flush(); err != nil {
						return err
					}
					stats.Lines, stats.Pages = merger.lines, merger.pages
					return writer.Close()
				}
				if err := merger.process(line); err != nil {
					return err
				}
			}
		}
	})
	if err := group.Wait(); err != nil {
		return stats, err
	}
	if err := <-errChan; err != nil {
		return stats, err
	}

	stats.Files = len(paths)
	logf("ingested %d dump files with %s lines for %s pages in %.1fs",
		stats.Files, humanize.Comma(stats.Lines), humanize.Comma(stats.Pages),
		time.Since(start).Seconds())
	return stats, nil
}

// readDump sends one sortable line per page view count, formatted as
// "project \t title \t time \t views".
func readDump(ctx context.Context, r io.Reader, t time.Time, projects map[string]bool, out chan<- string) error {
	ts := t.UTC().Format(timeFormat)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		cols := strings.Fields(scanner.Text())
		if len(cols) < 3 {
			continue
		}

		project := cols[0]
		if projects != nil && !projects[project] {
			continue
		}

		// Some, but not all, titles are urlescaped.
		// Try to unescape, but fall back to the raw title
		// if the syntax is invalid.
		title, err := url.QueryUnescape(cols[1])
		if err != nil {
			title = cols[1]
		}
		if !utf8.ValidString(title) {
			continue
		}

		count, err := strconv.ParseInt(cols[2], 10, 64)
		if err != nil || count <= 0 {
			continue
		}

		var buf strings.Builder
		buf.WriteString(project)
		buf.WriteByte('\t')
		buf.WriteString(views.Wikify(title))
		buf.WriteByte('\t')
		buf.WriteString(ts)
		buf.WriteByte('\t')
		buf.WriteString(strconv.FormatInt(count, 10))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- buf.String():
		}
	}
	return scanner.Err()
}

// sampleMerger groups sorted lines by page, adding up the views
// of lines with the same page and time, and merges each page's
// samples into the store.
type sampleMerger struct {
	writer         *Writer
	project, title string
	samples        []views.Sample
	lines, pages   int64
}

func (m *sampleMerger) process(line string) error {
	m.lines += 1
	cols := strings.Split(line, "\t")
	if len(cols) != 4 {
		return fmt.Errorf("bad sorted line %q", line)
	}
	t, err := time.Parse(timeFormat, cols[2])
	if err != nil {
		return err
	}
	count, err := strconv.ParseInt(cols[3], 10, 64)
	if err != nil {
		return err
	}

	if cols[0] != m.project || cols[1] != m.title {
		if err := m.flush(); err != nil {
			return err
		}
		m.project, m.title = cols[0], cols[1]
	}

	if n := len(m.samples); n > 0 && m.samples[n-1].Time.Equal(t) {
		m.samples[n-1].Views += count
	} else {
		m.samples = append(m.samples, views.Sample{Time: t, Views: count})
	}
	return nil
}

func (m *sampleMerger) flush() error {
	if len(m.samples) == 0 {
		return nil
	}
	if err := m.writer.Merge(m.project, m.title, m.samples); err != nil {
		return err
	}
	m.pages += 1
	m.samples = m.samples[:0]
	return nil
}
