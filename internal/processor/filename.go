package processor

import (
	"path/filepath"
	"strings"

	"tabletop-rules-rag/internal/models"
)

// TitleFromFilename derives a game title from a source filename. The
// extension is stripped and the portion before the first separator is
// title-cased, so companion files like "catan-rulebook.pdf" and
// "catan-faq.pdf" derive the same title and merge into one game. Matching is
// case-sensitive on the result: "Catan" and "catan" would be distinct games.
func TitleFromFilename(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	if i := strings.IndexAny(base, "-_"); i >= 0 {
		base = base[:i]
	}

	return titleCase(base)
}

// SourceTypeFromFilename infers the document type from keywords in the
// filename. Anything that is not recognizably a FAQ, errata, or rulebook is
// tagged as supplemental material.
func SourceTypeFromFilename(name string) models.SourceType {
	lower := strings.ToLower(filepath.Base(name))

	switch {
	case strings.Contains(lower, "faq"):
		return models.SourceFAQ
	case strings.Contains(lower, "errata"):
		return models.SourceErrata
	case strings.Contains(lower, "rulebook"), strings.Contains(lower, "rules"):
		return models.SourceRulebook
	default:
		return models.SourceSupplement
	}
}

// titleCase uppercases the first letter of each space-separated word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
