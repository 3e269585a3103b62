// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package views

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wikiviews",
		Name:      "cumulative_cache_lookups_total",
		Help:      "Lookups of cumulative views functions, by result (hit, miss).",
	}, []string{"result"})

	sampleSearchSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "wikiviews",
		Name:      "sample_search_seconds",
		Help:      "Time spent searching the samples of one page.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	})

	countedSpans = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wikiviews",
		Name:      "counted_spans_total",
		Help:      "Calls to Counter.Count, by outcome (counted, no_data, outside_period).",
	}, []string{"outcome"})
)
