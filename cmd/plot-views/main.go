// Tool for plotting the cumulative views of a wiki page.
//
// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fogleman/gg"

	"github.com/brawer/wikiviews/internal/pagecounts"
	"github.com/brawer/wikiviews/internal/views"
)

func main() {
	samplesPath := flag.String("samples", "cache/pagecounts", "path to page view sample store")
	project := flag.String("project", "en", "wiki project, such as \"en\" or \"de.m\"")
	page := flag.String("page", "", "title of the page to plot")
	granularity := flag.Duration("granularity", time.Hour, "duration of one sample")
	font := flag.String("font", "", "path to label font; empty for a built-in bitmap font")
	out := flag.String("out", "views.png", "path to output file being written")
	flag.Parse()

	if *page == "" {
		log.Fatal("missing -page")
	}

	store, err := pagecounts.Open(*samplesPath)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	counter, err := views.NewCounter(store, views.Options{Granularity: *granularity, CacheSize: 1})
	if err != nil {
		log.Fatal(err)
	}
	cum, err := counter.Cumulative(context.Background(), *project, *page)
	if err != nil {
		log.Fatal(err)
	}

	label := fmt.Sprintf("%s/%s", *project, views.Wikify(*page))
	if err := PlotViews(cum, label, *font, *out); err != nil {
		log.Fatal(err)
	}
}

// PlotViews draws the cumulative views of a page into a PNG file.
func PlotViews(cum *views.Cumulative, label, fontPath, outPath string) error {
	if cum.Empty() {
		return fmt.Errorf("no views recorded for %s", label)
	}

	axisWidth := 60.0
	plotWidth, plotHeight := 1000.0, 600.0
	dc := gg.NewContext(int(plotWidth+2*axisWidth), int(plotHeight+2*axisWidth))
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetRGB(0, 0, 0)

	if fontPath != "" {
		if err := dc.LoadFontFace(fontPath, 14.0); err != nil {
			return err
		}
	}

	// Axes.
	left, bottom := axisWidth, axisWidth+plotHeight
	dc.MoveTo(left, axisWidth)
	dc.LineTo(left, bottom)
	dc.LineTo(left+plotWidth, bottom)
	dc.Stroke()

	start, end := cum.Start(), cum.End()
	total := float64(cum.Total())
	dc.DrawStringAnchored(label, left+plotWidth/2, axisWidth/2, 0.5, 0.5)
	dc.DrawStringAnchored(start.Format(time.DateTime), left, bottom+20, 0, 0.5)
	dc.DrawStringAnchored(end.Format(time.DateTime), left+plotWidth, bottom+20, 1, 0.5)
	dc.DrawStringAnchored(humanize.Comma(cum.Total()), left-5, axisWidth, 1, 0.5)
	dc.DrawStringAnchored("0", left-5, bottom, 1, 0.5)

	scaleY := plotHeight
	if total > 0 {
		scaleY = plotHeight / total
	}
	span := end.Sub(start)
	dc.SetRGB(0, 0.4, 1)
	for i := 0; i <= int(plotWidth); i++ {
		t := start.Add(time.Duration(float64(span) * float64(i) / plotWidth))
		x := left + float64(i)
		y := bottom - cum.At(t)*scaleY
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.SetLineWidth(2)
	dc.Stroke()

	return dc.SavePNG(outPath)
}
