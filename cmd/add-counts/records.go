// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"strconv"

	"github.com/brawer/wikiviews/internal/views"
)

// The columns of input files; output files have an extra "views" column.
var inputColumns = []string{
	"project", "page_id", "page_title",
	"identifier_type", "identifier_id",
	"start_date", "end_date",
}

// Record is one identifier of a wiki page, valid during a time span.
type Record struct {
	Project        string
	PageID         int64
	PageTitle      string
	IdentifierType string
	IdentifierID   string
	Start, End     views.Bound

	// Fields holds the record as it was read, for writing it out
	// unchanged.
	Fields []string
}

// ParseRecord parses the columns of an input line.
func ParseRecord(fields []string) (*Record, error) {
	if len(fields) != len(inputColumns) {
		return nil, fmt.Errorf("got %d fields, want %d", len(fields), len(inputColumns))
	}

	pageID, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad page_id %q", fields[1])
	}

	start, err := views.ParseBound(fields[5])
	if err != nil {
		return nil, fmt.Errorf("bad start_date: %w", err)
	}

	end, err := views.ParseBound(fields[6])
	if err != nil {
		return nil, fmt.Errorf("bad end_date: %w", err)
	}

	return &Record{
		Project:        fields[0],
		PageID:         pageID,
		PageTitle:      fields[2],
		IdentifierType: fields[3],
		IdentifierID:   fields[4],
		Start:          start,
		End:            end,
		Fields:         fields,
	}, nil
}

// Identifier returns a string like "doi:10.1000/182" for log messages.
func (r *Record) Identifier() string {
	return r.IdentifierType + ":" + r.IdentifierID
}

// OutputFields returns the fields of an output line.
func (r *Record) OutputFields(viewCount float64) []string {
	out := make([]string, 0, len(r.Fields)+1)
	out = append(out, r.Fields...)
	return append(out, formatViews(viewCount))
}

func formatViews(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// IsHeader reports whether fields are the column names of an input file.
func IsHeader(fields []string) bool {
	if len(fields) != len(inputColumns) {
		return false
	}
	for i, col := range inputColumns {
		if fields[i] != col {
			return false
		}
	}
	return true
}
