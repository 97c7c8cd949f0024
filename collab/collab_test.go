package collab

import (
	"net/http"
	"testing"
)

func TestClassifyStatusMapsKnownCodes(t *testing.T) {
	cases := map[int]FetchOutcome{
		http.StatusOK:                  OutcomeOK,
		http.StatusNotModified:         OutcomeNotModified,
		http.StatusNotFound:            OutcomeNotFound,
		http.StatusForbidden:           OutcomeForbidden,
		http.StatusUnauthorized:        OutcomeForbidden,
		http.StatusTooManyRequests:     OutcomeRateLimited,
		http.StatusInternalServerError: OutcomeServerError,
		http.StatusBadGateway:          OutcomeServerError,
	}
	for code, want := range cases {
		if got := classifyStatus(code); got != want {
			t.Errorf("classifyStatus(%d) = %s, want %s", code, got, want)
		}
	}
}
