// Package collab declares the external-collaborator interfaces (C14)
// the rest of the module is written against: fetching pages, extracting
// text from PDFs and spreadsheets, and routing LLM calls. Per spec.md
// §1's scope boundary these are mostly interfaces; HTTPFetcher,
// PDFExtractorAdapter, and SpreadsheetReaderAdapter are the only
// concrete reference implementations shipped, grounded in the teacher's
// parser/pdf.go and llm/provider.go idioms. HTMLParser ships with no
// concrete adapter: HTML readability extraction is a distinct, large
// external system genuinely out of scope for this module.
package collab

import "context"

// FetchOutcome classifies a fetch attempt per spec.md §4.2.1.
type FetchOutcome string

const (
	OutcomeOK            FetchOutcome = "ok"
	OutcomeNotModified    FetchOutcome = "not_modified"
	OutcomeNotFound       FetchOutcome = "not_found"
	OutcomeForbidden      FetchOutcome = "forbidden"
	OutcomeRateLimited    FetchOutcome = "rate_limited"
	OutcomeServerError    FetchOutcome = "server_error"
	OutcomeTimeout        FetchOutcome = "timeout"
	OutcomeNetworkError   FetchOutcome = "network_error"
)

// FetchResult is what a Fetcher returns for one URL.
type FetchResult struct {
	URL         string
	StatusCode  int
	Outcome     FetchOutcome
	Body        []byte
	ContentType string
	FinalURL    string
}

// Fetcher retrieves raw page bytes for a URL. Implementations are
// expected to respect context cancellation and the caller's host-budget
// decisions; collab itself does not rate-limit.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// ParsedBlock is one structural unit of parsed document text (a
// paragraph, heading, or table row), mirroring the teacher parser's
// Section shape (parser/types.go-equivalent), generalized across
// HTML/PDF/spreadsheet sources.
type ParsedBlock struct {
	Content    string
	Type       string
	PageNumber int
}

// HTMLParser extracts readable text blocks from an HTML document. No
// concrete implementation ships with this module; HTML readability
// extraction (boilerplate removal, main-content detection) is a
// separate external system per spec.md §1.
type HTMLParser interface {
	ParseHTML(ctx context.Context, body []byte) ([]ParsedBlock, error)
}

// PDFExtractor extracts text (and optionally table-shaped rows) from a
// PDF document.
type PDFExtractor interface {
	ExtractPDF(ctx context.Context, path string) ([]ParsedBlock, error)
}

// SpreadsheetReader reads rows from one sheet of a workbook file.
type SpreadsheetReader interface {
	ReadSheet(path, sheet string) ([][]string, error)
	SheetNames(path string) ([]string, error)
}

// LLMRequest is a provider-agnostic chat completion request, mirroring
// the teacher's llm.ChatRequest shape.
type LLMRequest struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// LLMResponse is a provider-agnostic chat completion response.
type LLMResponse struct {
	Content      string
	Model        string
	FinishReason string
}

// LLMRouter sends chat completions through a pool of providers, with a
// circuit breaker protecting against a provider that is failing
// repeatedly.
type LLMRouter interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
