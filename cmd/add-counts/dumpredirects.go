// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/brawer/wikiviews/internal/compressed"
	"github.com/brawer/wikiviews/internal/views"
)

// DumpRedirects knows the redirects of a wiki from its redirect.sql.gz
// and page.sql.gz dump files. Everything is kept in memory, so this is
// meant for offline runs where no database replica is at hand.
type DumpRedirects struct {
	redirects map[string][]int64 // target title -> redirecting pages
	titles    map[int64]string   // redirecting page -> title
}

// DumpPaths returns the paths of the redirect and page table dumps
// of a wiki, such as dumps/enwiki/20240301/enwiki-20240301-page.sql.gz.
// If date is "latest", the "latest" symlinks get resolved.
func DumpPaths(dumps, wiki, date string) (redirect, page string, err error) {
	path := func(table string) (string, error) {
		name := fmt.Sprintf("%s-%s-%s.sql.gz", wiki, date, table)
		p := filepath.Join(dumps, wiki, date, name)
		if date == "latest" {
			return filepath.EvalSymlinks(p)
		}
		return p, nil
	}
	if redirect, err = path("redirect"); err != nil {
		return "", "", err
	}
	if page, err = path("page"); err != nil {
		return "", "", err
	}
	return redirect, page, nil
}

// LoadDumpRedirects reads the redirects of a wiki from its dump files.
func LoadDumpRedirects(ctx context.Context, redirectPath, pagePath string) (*DumpRedirects, error) {
	d := &DumpRedirects{
		redirects: make(map[string][]int64, 1024),
		titles:    make(map[int64]string, 1024),
	}

	err := readSQLDump(ctx, redirectPath, []string{"rd_from", "rd_namespace", "rd_title", "rd_interwiki"},
		func(row []string) error {
			// Cross-wiki redirects and redirects to other namespaces
			// don't contribute to the views of articles.
			if row[1] != "0" || row[3] != "" {
				return nil
			}
			from, err := strconv.ParseInt(row[0], 10, 64)
			if err != nil {
				return fmt.Errorf("bad rd_from %q", row[0])
			}
			d.redirects[row[2]] = append(d.redirects[row[2]], from)
			d.titles[from] = ""
			return nil
		})
	if err != nil {
		return nil, err
	}

	found := 0
	err = readSQLDump(ctx, pagePath, []string{"page_id", "page_title"},
		func(row []string) error {
			id, err := strconv.ParseInt(row[0], 10, 64)
			if err != nil {
				return fmt.Errorf("bad page_id %q", row[0])
			}
			if _, needed := d.titles[id]; needed {
				d.titles[id] = row[1]
				found += 1
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Printf("loaded %s redirects to %s pages from %s, found %s redirect titles in %s",
			humanize.Comma(int64(len(d.titles))), humanize.Comma(int64(len(d.redirects))),
			filepath.Base(redirectPath), humanize.Comma(int64(found)), filepath.Base(pagePath))
	}
	return d, nil
}

func (d *DumpRedirects) Redirects(ctx context.Context, title string) ([]int64, error) {
	return d.redirects[title], nil
}

func (d *DumpRedirects) Title(ctx context.Context, page int64) (string, error) {
	if title := d.titles[page]; title != "" {
		return title, nil
	}
	return "", fmt.Errorf("page %d: %w", page, views.ErrPageNotFound)
}

// ReadSQLDump calls fn for every row of a table dump, passing the
// values of the requested columns.
func readSQLDump(ctx context.Context, path string, columns []string, fn func(row []string) error) error {
	file, err := compressed.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader, err := NewSQLReader(file)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	index := make([]int, len(columns))
	for i, col := range columns {
		index[i] = slices.Index(reader.Columns(), col)
		if index[i] < 0 {
			return fmt.Errorf("%s: no column %q in table `%s`", path, col, reader.Table())
		}
	}

	values := make([]string, len(columns))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		row, err := reader.Read()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if row == nil {
			return nil
		}

		for i, col := range index {
			values[i] = row[col]
		}
		if err := fn(values); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
}
