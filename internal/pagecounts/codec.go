// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package pagecounts

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brawer/wikiviews/internal/views"
)

var errCorrupt = errors.New("corrupt samples")

// Key returns the storage key for the samples of a page.
// Titles must already be in the form returned by views.Wikify,
// which never contains tabs.
func Key(project, title string) []byte {
	var buf strings.Builder
	buf.Grow(len(project) + len(title) + 1)
	buf.WriteString(project)
	buf.WriteByte('\t')
	buf.WriteString(title)
	return []byte(buf.String())
}

// EncodeSamples serializes sorted samples into a compact byte
// sequence: the number of samples, the Unix time of the first
// sample, and then for each sample the seconds since its predecessor
// followed by its view count.
func EncodeSamples(samples []views.Sample) []byte {
	buf := make([]byte, 0, binary.MaxVarintLen64*(2*len(samples)+2))
	buf = binary.AppendUvarint(buf, uint64(len(samples)))
	if len(samples) == 0 {
		return buf
	}

	last := samples[0].Time.Unix()
	buf = binary.AppendVarint(buf, last)
	for _, s := range samples {
		t := s.Time.Unix()
		buf = binary.AppendUvarint(buf, uint64(t-last))
		buf = binary.AppendUvarint(buf, uint64(s.Views))
		last = t
	}
	return buf
}

// DecodeSamples is the inverse of EncodeSamples.
func DecodeSamples(b []byte) ([]views.Sample, error) {
	n, size := binary.Uvarint(b)
	if size <= 0 {
		return nil, errCorrupt
	}
	b = b[size:]
	if n == 0 {
		return nil, nil
	}
	if n > uint64(len(b)) {
		return nil, fmt.Errorf("%w: %d samples in %d bytes", errCorrupt, n, len(b))
	}

	t, size := binary.Varint(b)
	if size <= 0 {
		return nil, errCorrupt
	}
	b = b[size:]

	samples := make([]views.Sample, 0, n)
	for i := uint64(0); i < n; i++ {
		delta, size := binary.Uvarint(b)
		if size <= 0 {
			return nil, errCorrupt
		}
		b = b[size:]

		count, size := binary.Uvarint(b)
		if size <= 0 {
			return nil, errCorrupt
		}
		b = b[size:]

		t += int64(delta)
		samples = append(samples, views.Sample{
			Time:  time.Unix(t, 0).UTC(),
			Views: int64(count),
		})
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", errCorrupt, len(b))
	}
	return samples, nil
}

// mergeSamples merges two sorted sample slices. For timestamps present
// in both, the sample from newer wins, so that ingesting the same dump
// file twice does not count its views twice.
func mergeSamples(older, newer []views.Sample) []views.Sample {
	result := make([]views.Sample, 0, len(older)+len(newer))
	i, j := 0, 0
	for i < len(older) && j < len(newer) {
		switch c := older[i].Time.Compare(newer[j].Time); {
		case c < 0:
			result = append(result, older[i])
			i++
		case c > 0:
			result = append(result, newer[j])
			j++
		default:
			result = append(result, newer[j])
			i++
			j++
		}
	}
	result = append(result, older[i:]...)
	return append(result, newer[j:]...)
}
