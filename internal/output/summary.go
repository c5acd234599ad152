package output

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/JakeFAU/kmt-crawler/internal/archive"
)

// PrintSummary renders one row per paper with its scan counts and error.
func PrintSummary(w io.Writer, papers []archive.PaperRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"DOI", "Details", "Reactions", "With SMILES", "Error"})

	totalDetails, totalReactions := 0, 0
	for _, p := range papers {
		withSMILES := 0
		for _, r := range p.Reactions {
			if r.OverallReactionSMILES != nil {
				withSMILES++
			}
		}
		totalDetails += p.DetailsScanned
		totalReactions += len(p.Reactions)
		t.AppendRow(table.Row{
			archive.Value(p.DOI),
			p.DetailsScanned,
			len(p.Reactions),
			withSMILES,
			archive.Value(p.Error),
		})
	}
	t.AppendFooter(table.Row{"Total", totalDetails, totalReactions, "", ""})
	t.SetStyle(table.StyleRounded)
	t.Render()
}
