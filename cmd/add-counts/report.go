// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// RunReport summarizes a pipeline run. It gets written to
// add-counts-stats.json in the output directory.
type RunReport struct {
	Started     time.Time     `json:"started"`
	Finished    time.Time     `json:"finished"`
	CountsStart string        `json:"counts-period-start"`
	CountsEnd   string        `json:"counts-period-end"`
	Records     int64         `json:"records"`
	Failed      int64         `json:"failed"`
	Files       []*FileReport `json:"files"`
}

type FileReport struct {
	Input    string    `json:"input"`
	Output   string    `json:"output"`
	Records  int64     `json:"records"`
	Failed   int64     `json:"failed"`
	Failures []Failure `json:"failures,omitempty"`
}

// Failure tells why a record could not be processed.
type Failure struct {
	File       string `json:"file"`
	Line       int    `json:"line"`
	Identifier string `json:"identifier,omitempty"`
	Error      string `json:"error"`
}

func writeReport(report *RunReport, outDir string) (string, error) {
	path := filepath.Join(outDir, "add-counts-stats.json")
	tmpPath := path + ".tmp"

	j, err := json.MarshalIndent(report, "", "    ")
	if err != nil {
		return "", err
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(j); err != nil {
		return "", err
	}
	if err := f.Sync(); err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", err
	}

	return path, nil
}
