// Package archive defines the record types produced by an archive scrape and
// the lister/walker pipeline that produces them.
package archive

import "errors"

// ErrPageTimeout reports that a page did not become ready within its wait budget.
var ErrPageTimeout = errors.New("page load wait timed out")

// ErrNoXMLLink reports a detail page that carries no XML anchor.
var ErrNoXMLLink = errors.New("no XML link on detail page")

// Entry is one candidate paper found on the archive index.
type Entry struct {
	StartURL  string
	TitleText string
	// Year is zero when the enclosing text carries no four-digit year.
	Year int
}

// PaperRecord collects every reaction scraped for one Entry.
type PaperRecord struct {
	DOI            *string          `json:"doi"`
	DetailsScanned int              `json:"details_scanned"`
	Reactions      []ReactionRecord `json:"reactions"`
	Error          *string          `json:"error"`
}

// ReactionRecord is the data scraped from a single detail page.
type ReactionRecord struct {
	DetailsURL            string           `json:"details_url"`
	OverallReactionSMILES *string          `json:"overall_reaction_smiles"`
	Molecules             []MoleculeRecord `json:"molecules"`
}

// MoleculeRecord is one participant of a reaction. A nil field was absent in the source XML.
type MoleculeRecord struct {
	Role     *string `json:"role"`
	InChIKey *string `json:"inchiKey"`
	SMILES   *string `json:"smiles"`
	Name     *string `json:"name"`
	Ratio    *string `json:"ratio"`
}

// Anchor is a link as rendered by a Browser.
type Anchor struct {
	// Href is absolute, resolved against the page URL.
	Href       string `json:"href"`
	Text       string `json:"text"`
	ParentText string `json:"parentText"`
}

// Response is the result of a plain HTTP GET.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Value returns the string behind an optional field, or "" when absent.
func Value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func stringPtr(s string) *string {
	return &s
}
