package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/JakeFAU/kmt-crawler/internal/archive"
)

const noMoleculesLabel = "No molecules found in XML"

var blockDivider = strings.Repeat("=", 50)

// WriteCSV writes one labeled block per reaction: DOI, details URL and overall
// SMILES label rows, a Role/Name/SMILES/Ratio table, then a divider.
func WriteCSV(w io.Writer, papers []archive.PaperRecord) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	for _, paper := range papers {
		doi := archive.Value(paper.DOI)
		for _, rxn := range paper.Reactions {
			if err := writeReactionBlock(cw, doi, rxn); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func writeReactionBlock(cw *csv.Writer, doi string, rxn archive.ReactionRecord) error {
	rows := [][]string{
		{"DOI:", doi},
		{"Details URL:", rxn.DetailsURL},
		{"Overall Reaction SMILES:", archive.Value(rxn.OverallReactionSMILES)},
		{"Role", "Name", "SMILES", "Ratio"},
	}
	for _, m := range rxn.Molecules {
		rows = append(rows, []string{
			archive.Value(m.Role),
			archive.Value(m.Name),
			archive.Value(m.SMILES),
			archive.Value(m.Ratio),
		})
	}
	if len(rxn.Molecules) == 0 {
		rows = append(rows, []string{noMoleculesLabel, "", "", ""})
	}
	rows = append(rows, []string{}, []string{blockDivider}, []string{})
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write reaction block %s: %w", rxn.DetailsURL, err)
	}
	return nil
}
