// SPDX-FileCopyrightText: 2022 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

// Package compressed opens and creates files whose compression
// is given by their file name extension.
package compressed

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Open returns a reader for the decompressed content of a file.
// Files ending in .gz, .bz2, .zst, .br and .xz get decompressed;
// anything else is read as is.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var r io.Reader
	switch Ext(path) {
	case ".gz":
		r, err = gzip.NewReader(f)
	case ".bz2":
		r, err = bzip2.NewReader(f, &bzip2.ReaderConfig{})
	case ".zst":
		var d *zstd.Decoder
		d, err = zstd.NewReader(f)
		if err == nil {
			r = d.IOReadCloser()
		}
	case ".br":
		r = brotli.NewReader(f)
	case ".xz":
		r, err = xz.NewReader(f)
	default:
		return f, nil
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return &readCloser{r: r, f: f}, nil
}

// Create makes a new file whose content gets compressed according
// to its extension. The file is complete only after Close returned
// without error.
func Create(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	var w io.WriteCloser
	switch Ext(path) {
	case ".gz":
		w, err = gzip.NewWriterLevel(f, gzip.BestCompression)
	case ".bz2":
		w, err = bzip2.NewWriter(f, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	case ".zst":
		w, err = zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	case ".br":
		w = brotli.NewWriterLevel(f, 9)
	case ".xz":
		w, err = xz.NewWriter(f)
	default:
		return f, nil
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return &writeCloser{w: w, f: f}, nil
}

// Ext returns the lower-cased extension of a path.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

type readCloser struct {
	r io.Reader
	f *os.File
}

func (rc *readCloser) Read(p []byte) (int, error) {
	return rc.r.Read(p)
}

func (rc *readCloser) Close() error {
	if c, ok := rc.r.(io.Closer); ok {
		if err := c.Close(); err != nil {
			rc.f.Close()
			return err
		}
	}
	return rc.f.Close()
}

type writeCloser struct {
	w io.WriteCloser
	f *os.File
}

func (wc *writeCloser) Write(p []byte) (int, error) {
	return wc.w.Write(p)
}

func (wc *writeCloser) Close() error {
	if err := wc.w.Close(); err != nil {
		wc.f.Close()
		return err
	}
	if err := wc.f.Sync(); err != nil {
		wc.f.Close()
		return err
	}
	return wc.f.Close()
}
