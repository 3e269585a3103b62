// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

// Command pagecounts-builder ingests hourly Wikimedia pageview dumps,
// such as pageviews-20150901-010000.gz, into a local sample store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/brawer/wikiviews/internal/pagecounts"
)

var logger *log.Logger

func main() {
	samplesPath := flag.String("samples", "cache/pagecounts", "path to page view sample store")
	granularity := flag.Duration("granularity", time.Hour, "duration covered by one dump file")
	projects := flag.String("projects", "", "comma-separated projects to keep, like \"en,de\"; empty for all")
	flag.Parse()

	logfile, err := createLogFile()
	if err != nil {
		log.Fatal(err)
	}
	defer logfile.Close()
	logger = log.New(logfile, "", log.Ldate|log.Ltime|log.LUTC|log.Lshortfile)

	paths, err := expandArgs(flag.Args())
	if err != nil {
		log.Fatal(err)
	}
	if len(paths) == 0 {
		log.Fatal("no dump files given")
	}

	store, err := pagecounts.Open(*samplesPath)
	if err != nil {
		logger.Fatal(err)
	}
	defer store.Close()

	opts := pagecounts.IngestOptions{
		Granularity: *granularity,
		Projects:    splitProjects(*projects),
		Logger:      logger,
	}
	stats, err := pagecounts.Ingest(context.Background(), store, paths, opts)
	if err != nil {
		logger.Fatal(err)
	}
	fmt.Printf("ingested %d files, %d lines, %d pages\n", stats.Files, stats.Lines, stats.Pages)
}

// ExpandArgs replaces directory arguments by the dump files inside them.
func expandArgs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if _, err := pagecounts.DumpTime(e.Name()); err == nil {
				paths = append(paths, filepath.Join(arg, e.Name()))
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func splitProjects(s string) []string {
	var result []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

// Create a file for keeping logs. If the file already exists, its
// present content is preserved, and new log entries will get appended
// after the existing ones.
func createLogFile() (*os.File, error) {
	logpath := filepath.Join("logs", "pagecounts-builder.log")
	if err := os.MkdirAll("logs", os.ModePerm); err != nil {
		return nil, err
	}

	logfile, err := os.OpenFile(logpath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	return logfile, nil
}
