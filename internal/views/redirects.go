// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package views

import (
	"context"
	"errors"
	"log"
)

// ErrPageNotFound is returned by RedirectStore.Title for unknown pages.
var ErrPageNotFound = errors.New("page not found")

// RedirectStore knows the redirects of a wiki. Titles are passed
// in the form returned by Wikify.
type RedirectStore interface {
	// Redirects returns the page IDs of all redirects in the main
	// namespace that point to title.
	Redirects(ctx context.Context, title string) ([]int64, error)

	// Title returns the title of a page, or ErrPageNotFound.
	Title(ctx context.Context, page int64) (string, error)
}

// ResolveAliases returns the titles whose views should be summed up
// for a page: all redirects to the page, followed by the page itself.
// Redirects whose pages are missing from the store get logged and skipped.
func ResolveAliases(ctx context.Context, store RedirectStore, title string, logger *log.Logger) ([]string, error) {
	title = Wikify(title)
	ids, err := store.Redirects(ctx, title)
	if err != nil {
		return nil, err
	}

	aliases := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		t, err := store.Title(ctx, id)
		if errors.Is(err, ErrPageNotFound) {
			if logger != nil {
				logger.Printf("warning: redirect %d to %q has no page", id, title)
			}
			continue
		} else if err != nil {
			return nil, err
		}
		aliases = append(aliases, Wikify(t))
	}
	return append(aliases, title), nil
}
