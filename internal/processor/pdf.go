// Package processor turns source documents into per-page text and maps
// filenames to the game title and source-type they contribute to.
package processor

import (
	"fmt"

	"github.com/ledongthuc/pdf"

	"tabletop-rules-rag/internal/models"
)

// ExtractPages extracts plain text from every page of a PDF, keeping 1-based
// page numbers. Pages that fail text extraction are returned with empty text
// rather than failing the whole document; an unreadable file is an error and
// the caller skips that file.
func ExtractPages(path string) ([]models.PageText, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	pages := make([]models.PageText, 0, total)

	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, models.PageText{Page: i})
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single corrupt page should not lose the rest of the book.
			pages = append(pages, models.PageText{Page: i})
			continue
		}
		pages = append(pages, models.PageText{Page: i, Text: text})
	}

	return pages, nil
}
