package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/sensorable/cococonv"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	okColor     = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
)

// countColor highlights non-zero skip counts.
func countColor(n int) *color.Color {
	if n > 0 {
		return warnColor
	}
	return okColor
}

func printDatasetHeader(w io.Writer, name string) {
	_, _ = headerColor.Fprintf(w, "\n===== %s =====\n", name)
}

func printConvertSummary(w io.Writer, s cococonv.Summary) {
	_, _ = fmt.Fprint(w, "Process completed with ")
	_, _ = countColor(s.BadXML).Fprintf(w, "%d bad xml files", s.BadXML)
	_, _ = fmt.Fprint(w, ", ")
	_, _ = countColor(s.MissingImage).Fprintf(w, "%d missing images", s.MissingImage)
	_, _ = fmt.Fprint(w, ", and ")
	_, _ = okColor.Fprintf(w, "%d no errors", s.Success)
	_, _ = fmt.Fprintf(w, ". %d files processed total.\n", s.Total())

	_, _ = fmt.Fprintf(w, "%d annotations written", s.Annotations)
	if s.UnknownCategory > 0 || s.BadObject > 0 {
		_, _ = warnColor.Fprintf(w, " (%d unknown category, %d malformed objects skipped)",
			s.UnknownCategory, s.BadObject)
	}
	_, _ = fmt.Fprintln(w)
}

func printPruneResult(w io.Writer, r cococonv.PruneResult, dryRun bool) {
	verb := "Deleted"
	if dryRun {
		verb = "Would delete"
	}
	for _, name := range r.Deleted {
		_, _ = fmt.Fprintf(w, "%s %s\n", verb, name)
	}
	_, _ = fmt.Fprintf(w, "%s %d unused images, kept %d", verb, len(r.Deleted), r.Kept)
	if r.Stripped > 0 {
		_, _ = fmt.Fprintf(w, ", stripped %d of %d annotations", r.Stripped, r.Annotations)
	}
	_, _ = fmt.Fprintln(w)
	if len(r.Missing) > 0 {
		_, _ = warnColor.Fprintf(w, "%d referenced images do not exist:\n", len(r.Missing))
		for _, name := range r.Missing {
			_, _ = fmt.Fprintf(w, "  %s\n", name)
		}
	}
}

func printOverlapEstimate(w io.Writer, e cococonv.OverlapEstimate) {
	_, _ = headerColor.Fprintf(w, "\n>>> Optimal overlap for %d x %d crop\n\n", e.CropWidth,
		e.CropHeight)
	_, _ = fmt.Fprintf(w, "===== Based on largest width(%d) and height(%d) =====\n",
		e.MaxWidth, e.MaxHeight)
	_, _ = okColor.Fprintf(w, "width overlap: %.2f\nheight overlap: %.2f\n",
		e.MaxOverlapW, e.MaxOverlapH)
	_, _ = fmt.Fprintf(w, "\n===== Based on average width(%.0f) and height(%.0f) =====\n",
		e.AvgWidth, e.AvgHeight)
	_, _ = okColor.Fprintf(w, "width overlap: %.2f\nheight overlap: %.2f\n",
		e.AvgOverlapW, e.AvgOverlapH)
	_, _ = fmt.Fprintf(w, "\n%d objects measured\n", e.Objects)
}

func printTileSummary(w io.Writer, s cococonv.TileSummary) {
	_, _ = fmt.Fprintf(w, "Wrote %d tiles with %d annotations from %d images\n", s.Tiles,
		s.Annotations, s.Images)
	if s.MissingImages > 0 || s.Dropped > 0 {
		_, _ = warnColor.Fprintf(w, "%d missing images, %d clipped annotations below the"+
			" visibility threshold\n", s.MissingImages, s.Dropped)
	}
}
