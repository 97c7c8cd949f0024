// Package canon canonicalizes URLs for frontier dedupe: stripping tracking
// params, normalizing host/scheme, and deriving a path signature used for
// dead-pattern detection.
package canon

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Result is the outcome of canonicalizing a URL.
type Result struct {
	CanonicalURL     string   `json:"canonical_url"`
	Domain           string   `json:"domain"`
	PathSignature    string   `json:"path_signature"`
	TrackingStripped []string `json:"tracking_stripped,omitempty"`
}

// trackingPrefixes matches parameter name prefixes dropped unconditionally.
var trackingPrefixes = []string{"utm_", "mc_", "pk_"}

// trackingExact matches exact parameter names dropped unconditionally.
var trackingExact = map[string]bool{
	"gclid":  true,
	"fbclid": true,
	"ref":    true,
	"igshid": true,
	"msclkid": true,
	"yclid":   true,
	"mkt_tok": true,
	"_ga":     true,
	"_gl":     true,
}

var (
	hexSegment = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	numSegment = regexp.MustCompile(`^[0-9]+$`)
)

// isTrackingParam reports whether a query parameter name belongs to the
// tracking set stripped during canonicalization.
func isTrackingParam(name string) bool {
	lower := strings.ToLower(name)
	if trackingExact[lower] {
		return true
	}
	for _, p := range trackingPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// Canonicalize normalizes raw into a deduplicatable canonical form. On
// unparseable input it returns a zero-value Result (empty strings), per
// spec.md §4.1.
func Canonicalize(raw string) Result {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return Result{}
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")

	if port := u.Port(); port != "" {
		if !isDefaultPort(scheme, port) {
			host = host + ":" + port
		}
	}

	path := u.EscapedPath()
	if strings.HasPrefix(path, "/amp/") {
		path = strings.TrimPrefix(path, "/amp")
	}
	if path == "" {
		path = "/"
	}
	if path != "/" && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}

	query := u.Query()
	var stripped []string
	for name := range query {
		if isTrackingParam(name) {
			stripped = append(stripped, name)
			query.Del(name)
		}
	}

	canonical := scheme + "://" + host + path
	if encoded := query.Encode(); encoded != "" {
		canonical += "?" + encoded
	}

	return Result{
		CanonicalURL:     canonical,
		Domain:           host,
		PathSignature:    pathSignature(path),
		TrackingStripped: stripped,
	}
}

// isDefaultPort reports whether port is the default for scheme.
func isDefaultPort(scheme, port string) bool {
	switch scheme {
	case "http":
		return port == "80"
	case "https":
		return port == "443"
	default:
		return false
	}
}

// pathSignature replaces numeric path segments with ":id" and long
// hex-only segments with ":hex", per spec.md §4.1.
func pathSignature(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if numSegment.MatchString(seg) {
			if _, err := strconv.Atoi(seg); err == nil {
				segments[i] = ":id"
				continue
			}
		}
		if len(seg) >= 8 && hexSegment.MatchString(seg) {
			segments[i] = ":hex"
		}
	}
	return strings.Join(segments, "/")
}
