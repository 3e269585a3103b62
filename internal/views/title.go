// SPDX-FileCopyrightText: 2022 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package views

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Wikify converts a page title into the form used by MediaWiki
// in its database tables and pageview dumps, such as "Lech_Wałęsa".
// Titles are put into Unicode normalization form C, and spaces
// (like all other control characters) become underscores.
// Letter case is preserved because MediaWiki titles are case-sensitive
// after the first letter.
func Wikify(title string) string {
	var buf strings.Builder
	buf.Grow(len(title))
	var it norm.Iter
	it.InitString(norm.NFC, strings.TrimSpace(title))
	for !it.Done() {
		c := it.Next()
		if c[0] > 0x20 {
			buf.Write(c)
		} else {
			buf.WriteByte('_')
		}
	}
	return buf.String()
}
