// Package reactionxml extracts reaction fields from the archive's XML export.
//
// The export is scanned with regular expressions rather than decoded with
// encoding/xml so that malformed or partially truncated documents still yield
// whatever fields they contain.
package reactionxml

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	reactionSmilesPattern = regexp.MustCompile(`(?s)<reactionSmiles>(.*?)</reactionSmiles>`)
	moleculePattern       = regexp.MustCompile(`(?s)<molecule>(.*?)</molecule>`)

	fieldPatterns = map[string]*regexp.Regexp{}
)

// Molecule field tags, in export order.
const (
	TagRole     = "role"
	TagInChIKey = "inchiKey"
	TagSMILES   = "smiles"
	TagName     = "name"
	TagRatio    = "ratio"
)

func init() {
	for _, tag := range []string{TagRole, TagInChIKey, TagSMILES, TagName, TagRatio} {
		fieldPatterns[tag] = tagPattern(tag)
	}
}

// Molecule holds the optional sub-fields of one <molecule> block.
type Molecule struct {
	Role     *string
	InChIKey *string
	SMILES   *string
	Name     *string
	Ratio    *string
}

// Reaction is the parsed content of one XML export.
type Reaction struct {
	SMILES    *string
	Molecules []Molecule
}

// Parse scans text for the first <reactionSmiles> value and every <molecule> block.
// Missing tags stay nil; Parse never fails.
func Parse(text string) Reaction {
	result := Reaction{Molecules: []Molecule{}}
	if m := reactionSmilesPattern.FindStringSubmatch(text); m != nil {
		result.SMILES = clean(m[1])
	}
	for _, block := range moleculePattern.FindAllStringSubmatch(text, -1) {
		body := block[1]
		result.Molecules = append(result.Molecules, Molecule{
			Role:     Field(body, TagRole),
			InChIKey: Field(body, TagInChIKey),
			SMILES:   Field(body, TagSMILES),
			Name:     Field(body, TagName),
			Ratio:    Field(body, TagRatio),
		})
	}
	return result
}

// Field returns the trimmed, unescaped text of the first <tag>…</tag> in block, or nil.
func Field(block, tag string) *string {
	pattern, ok := fieldPatterns[tag]
	if !ok {
		pattern = tagPattern(tag)
	}
	m := pattern.FindStringSubmatch(block)
	if m == nil {
		return nil
	}
	return clean(m[1])
}

func tagPattern(tag string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(tag)
	return regexp.MustCompile(`(?s)<` + quoted + `>(.*?)</` + quoted + `>`)
}

func clean(raw string) *string {
	value := html.UnescapeString(strings.TrimSpace(raw))
	return &value
}
