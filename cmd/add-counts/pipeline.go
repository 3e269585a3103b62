// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/brawer/wikiviews/internal/compressed"
	"github.com/brawer/wikiviews/internal/views"
)

var recordsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wikiviews_records_processed_total",
	Help: "Number of input records processed, by outcome.",
}, []string{"outcome"})

// Only the first failures of each file make it into the run report;
// all of them get logged.
const maxReportedFailures = 1000

// Pipeline adds view counts to files of identifier records.
type Pipeline struct {
	Samples   views.SampleSource
	Redirects views.RedirectStore
	Options   views.Options
	OutDir    string

	// Parallelism is the number of files processed at the same time.
	// Every file gets its own Counter, with its own cache.
	Parallelism int
}

// Run processes all input files. Failing records do not stop the run;
// they get reported in the returned RunReport. An error is returned
// only if the run could not be completed, for example because
// an output file could not be written.
func (p *Pipeline) Run(ctx context.Context, inputs []string) (*RunReport, error) {
	report := &RunReport{
		Started:     time.Now().UTC(),
		CountsStart: p.Options.Period.Start.String(),
		CountsEnd:   p.Options.Period.End.String(),
		Files:       make([]*FileReport, len(inputs)),
	}

	if err := os.MkdirAll(p.OutDir, os.ModePerm); err != nil {
		return nil, err
	}

	seen := make(map[string]string, len(inputs))
	for _, in := range inputs {
		out := p.outputPath(in)
		if other, ok := seen[out]; ok {
			return nil, fmt.Errorf("%s and %s would both be written to %s", other, in, out)
		}
		seen[out] = in
	}

	parallelism := p.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(parallelism)
	for i, in := range inputs {
		i, in := i, in
		group.Go(func() error {
			fr, err := p.processFile(groupCtx, in)
			if err != nil {
				return fmt.Errorf("%s: %w", in, err)
			}
			report.Files[i] = fr
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	for _, fr := range report.Files {
		report.Records += fr.Records
		report.Failed += fr.Failed
	}
	report.Finished = time.Now().UTC()
	return report, nil
}

func (p *Pipeline) outputPath(input string) string {
	return filepath.Join(p.OutDir, filepath.Base(input))
}

func (p *Pipeline) processFile(ctx context.Context, inPath string) (*FileReport, error) {
	start := time.Now()
	outPath := p.outputPath(inPath)
	fr := &FileReport{Input: inPath, Output: outPath}

	counter, err := views.NewCounter(p.Samples, p.Options)
	if err != nil {
		return nil, err
	}

	in, err := compressed.Open(inPath)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	// Write to a temporary file, and rename it when done, so that
	// readers never see a partially written file.
	tmpPath := filepath.Join(filepath.Dir(outPath), ".tmp-"+filepath.Base(outPath))
	out, err := compressed.Create(tmpPath)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmpPath)
	closeOut := sync.OnceValue(out.Close)
	defer closeOut()

	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	writer := csv.NewWriter(out)

	first := true
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return nil, err
			}
			fr.Records += 1
			fr.fail(Failure{File: inPath, Line: parseErr.Line, Error: parseErr.Err.Error()})
			continue
		}

		if first {
			first = false
			if IsHeader(fields) {
				if err := writer.Write(append(fields, "views")); err != nil {
					return nil, err
				}
				continue
			}
		}

		fr.Records += 1
		line, _ := reader.FieldPos(0)
		rec, err := ParseRecord(fields)
		if err != nil {
			fr.fail(Failure{File: inPath, Line: line, Error: err.Error()})
			continue
		}

		n, err := counter.CountForPage(ctx, p.Redirects, rec.Project, rec.PageTitle, rec.Start, rec.End)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		} else if err != nil {
			fr.fail(Failure{File: inPath, Line: line, Identifier: rec.Identifier(), Error: err.Error()})
			continue
		}

		if err := writer.Write(rec.OutputFields(n)); err != nil {
			return nil, err
		}
		recordsProcessed.WithLabelValues("counted").Inc()
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	if err := closeOut(); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Printf("processed %s records of %s into %s in %.1fs, %s failed",
			humanize.Comma(fr.Records), inPath, outPath,
			time.Since(start).Seconds(), humanize.Comma(fr.Failed))
	}
	return fr, nil
}

func (fr *FileReport) fail(f Failure) {
	fr.Failed += 1
	recordsProcessed.WithLabelValues("failed").Inc()
	if len(fr.Failures) < maxReportedFailures {
		fr.Failures = append(fr.Failures, f)
	}
	if logger != nil {
		logger.Printf("%s:%d: %s %s", f.File, f.Line, f.Identifier, f.Error)
	}
}
