// Package output renders scraped papers as JSON and report-style CSV and
// stores the rendered documents.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/JakeFAU/kmt-crawler/internal/archive"
)

// WriteJSON writes papers as a two-space indented JSON array. HTML characters
// are left unescaped so SMILES such as "A>B" read naturally.
func WriteJSON(w io.Writer, papers []archive.PaperRecord) error {
	if papers == nil {
		papers = []archive.PaperRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(papers); err != nil {
		return fmt.Errorf("encode papers: %w", err)
	}
	return nil
}
