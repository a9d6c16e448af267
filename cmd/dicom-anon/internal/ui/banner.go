// Package ui renders the CLI banner and the end-of-run summary,
// adapted from cmd/radx's internal/dicom/ui package.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/alexeyco/simpletable"
	"github.com/charmbracelet/lipgloss"
	"github.com/common-nighthawk/go-figure"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/codeninja55/dicom-anon/internal/run"
)

// BannerStyle matches the teacher's own banner color.
var BannerStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#5436bd")).
	Bold(true)

// PrintBanner prints the "dicom-anon" ASCII art banner to stderr.
func PrintBanner() {
	banner := figure.NewFigure("dicom-anon", "banner3", true)
	fmt.Fprintln(os.Stderr, BannerStyle.Render(banner.String()))
	fmt.Fprintln(os.Stderr)
}

// styled reports whether w is an interactive terminal that should
// receive lipgloss-styled output rather than plain text.
func styled(w *os.File) bool {
	return isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd())
}

// PrintSummary renders the per-run counts as a table: seen, cleaned,
// and quarantined broken down by reason.
func PrintSummary(w io.Writer, summary *run.Summary) {
	table := simpletable.New()
	table.Header = &simpletable.Header{
		Cells: []*simpletable.Cell{
			{Align: simpletable.AlignCenter, Text: "Metric"},
			{Align: simpletable.AlignCenter, Text: "Count"},
		},
	}

	quarantinedTotal := 0
	for _, n := range summary.Quarantined {
		quarantinedTotal += n
	}

	table.Body.Cells = [][]*simpletable.Cell{
		{{Text: "Seen"}, {Align: simpletable.AlignRight, Text: humanize.Comma(int64(summary.Seen))}},
		{{Text: "Cleaned"}, {Align: simpletable.AlignRight, Text: humanize.Comma(int64(summary.Cleaned))}},
		{{Text: "Quarantined"}, {Align: simpletable.AlignRight, Text: humanize.Comma(int64(quarantinedTotal))}},
	}

	for reason, n := range summary.Quarantined {
		table.Body.Cells = append(table.Body.Cells, []*simpletable.Cell{
			{Text: "  " + reason}, {Align: simpletable.AlignRight, Text: humanize.Comma(int64(n))},
		})
	}

	table.SetStyle(simpletable.StyleCompact)

	if f, ok := w.(*os.File); ok && styled(f) {
		fmt.Fprintln(w, BannerStyle.Render(table.String()))
		return
	}
	fmt.Fprintln(w, table.String())
}
