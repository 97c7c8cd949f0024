package collab

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractorAdapter is the reference PDFExtractor implementation,
// mirroring the teacher's parser/pdf.go page-by-page text walk, reduced
// from the teacher's full section/heading/running-header reconstruction
// down to the plain block extraction this module's evidence pipeline
// needs.
type PDFExtractorAdapter struct{}

// ExtractPDF walks each page with pdf.Open/page.GetPlainText, producing
// one ParsedBlock per non-empty page. A page that fails to extract is
// skipped rather than aborting the whole document, matching the
// teacher's "skip pages that fail to extract" behavior. When no page
// yields text, it returns a single block of Type "empty" with empty
// Content for page 1.
func (a *PDFExtractorAdapter) ExtractPDF(ctx context.Context, path string) ([]ParsedBlock, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("collab: opening PDF: %w", err)
	}
	defer f.Close()

	var blocks []ParsedBlock
	totalPages := reader.NumPage()
	for i := 1; i <= totalPages; i++ {
		select {
		case <-ctx.Done():
			return blocks, ctx.Err()
		default:
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		blocks = append(blocks, ParsedBlock{Content: text, Type: "paragraph", PageNumber: i})
	}

	if len(blocks) == 0 {
		return []ParsedBlock{{Content: "", Type: "empty", PageNumber: 1}}, nil
	}
	return blocks, nil
}
