package collab

import (
	"context"
	"io"
	"net/http"
	"time"
)

// HTTPFetcher is the reference Fetcher implementation: a plain
// net/http.Client with a classified-outcome mapper so frontier/hostbudget
// have a real collaborator to drive against, spec.md §4.14.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTPFetcher builds an HTTPFetcher with sane request timeouts.
func NewHTTPFetcher(userAgent string) *HTTPFetcher {
	return &HTTPFetcher{
		Client:    &http.Client{Timeout: 20 * time.Second},
		UserAgent: userAgent,
	}
}

// Fetch issues a GET and classifies the outcome per spec.md §4.2.1's
// status→outcome mapping.
func (h *HTTPFetcher) Fetch(ctx context.Context, url string) (FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{URL: url, Outcome: OutcomeNetworkError}, err
	}
	if h.UserAgent != "" {
		req.Header.Set("User-Agent", h.UserAgent)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return FetchResult{URL: url, Outcome: OutcomeTimeout}, err
		}
		return FetchResult{URL: url, Outcome: OutcomeNetworkError}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResult{URL: url, StatusCode: resp.StatusCode, Outcome: OutcomeNetworkError}, err
	}

	result := FetchResult{
		URL:         url,
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
		Outcome:     classifyStatus(resp.StatusCode),
	}
	return result, nil
}

// classifyStatus maps an HTTP status code to a FetchOutcome per
// spec.md §4.2.1.
func classifyStatus(code int) FetchOutcome {
	switch {
	case code == http.StatusNotModified:
		return OutcomeNotModified
	case code == http.StatusNotFound:
		return OutcomeNotFound
	case code == http.StatusForbidden || code == http.StatusUnauthorized:
		return OutcomeForbidden
	case code == http.StatusTooManyRequests:
		return OutcomeRateLimited
	case code >= 500:
		return OutcomeServerError
	case code >= 200 && code < 300:
		return OutcomeOK
	default:
		return OutcomeServerError
	}
}
