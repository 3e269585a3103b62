// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

// Package pagecounts keeps hourly page view samples in a local
// key-value store, and builds that store from Wikimedia pageview dumps.
package pagecounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/brawer/wikiviews/internal/views"
)

// Store keeps the view samples of wiki pages, keyed by project
// and title. It implements views.SampleSource, and is safe for
// concurrent use.
type Store struct {
	db *badger.DB
}

// Open opens the store in a directory on local disk,
// creating it if needed.
func Open(path string) (*Store, error) {
	return open(badger.DefaultOptions(path).WithLogger(nil))
}

// OpenInMemory opens a store that is not persisted, for testing.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open sample store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Search returns the samples of a page, sorted by time.
// If the page is unknown, the result is empty.
func (s *Store) Search(ctx context.Context, project, title string) ([]views.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var samples []views.Sample
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		samples, err = get(txn, Key(project, title))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", project, title, err)
	}
	return samples, nil
}

func get(txn *badger.Txn, key []byte) ([]views.Sample, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var samples []views.Sample
	err = item.Value(func(val []byte) error {
		samples, err = DecodeSamples(val)
		return err
	})
	return samples, err
}

// Writer merges samples into a Store. Writes are batched into
// transactions; they become visible after Close.
// A Writer must not be used concurrently.
type Writer struct {
	db  *badger.DB
	txn *badger.Txn
}

func (s *Store) NewWriter() *Writer {
	return &Writer{db: s.db, txn: s.db.NewTransaction(true)}
}

// Merge adds sorted samples to a page. Samples whose time is
// already in the store replace the stored ones.
func (w *Writer) Merge(project, title string, samples []views.Sample) error {
	key := Key(project, title)
	old, err := get(w.txn, key)
	if err != nil {
		return err
	}

	value := EncodeSamples(mergeSamples(old, samples))
	err = w.txn.Set(key, value)
	if errors.Is(err, badger.ErrTxnTooBig) {
		if err := w.txn.Commit(); err != nil {
			return err
		}
		w.txn = w.db.NewTransaction(true)
		err = w.txn.Set(key, value)
	}
	return err
}

// Close commits all pending writes.
func (w *Writer) Close() error {
	return w.txn.Commit()
}

// Discard drops all writes since the last internal commit.
func (w *Writer) Discard() {
	w.txn.Discard()
}
