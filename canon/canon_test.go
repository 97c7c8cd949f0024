package canon

import "testing"

func TestCanonicalizeStripsTrackingAndNormalizes(t *testing.T) {
	r := Canonicalize("HTTPS://WWW.Example.com:443/amp/Product/123/?utm_source=x&gclid=y&keep=1")
	if r.CanonicalURL != "https://example.com/Product/123?keep=1" {
		t.Fatalf("unexpected canonical url: %q", r.CanonicalURL)
	}
	if r.Domain != "example.com" {
		t.Fatalf("unexpected domain: %q", r.Domain)
	}
	if r.PathSignature != "/Product/:id" {
		t.Fatalf("unexpected path signature: %q", r.PathSignature)
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	raw := "https://shop.example.com/p/deadbeefcafe0011?utm_campaign=a&x=1"
	once := Canonicalize(raw)
	twice := Canonicalize(once.CanonicalURL)
	if once.CanonicalURL != twice.CanonicalURL {
		t.Fatalf("not idempotent: %q vs %q", once.CanonicalURL, twice.CanonicalURL)
	}
}

func TestCanonicalizeHexPathSignature(t *testing.T) {
	r := Canonicalize("https://example.com/items/deadbeefcafe0011")
	if r.PathSignature != "/items/:hex" {
		t.Fatalf("unexpected path signature: %q", r.PathSignature)
	}
}

func TestCanonicalizeInvalidURL(t *testing.T) {
	r := Canonicalize("::not a url::")
	if r.CanonicalURL != "" || r.Domain != "" {
		t.Fatalf("expected zero-value result, got %+v", r)
	}
}

func TestCanonicalizeTrailingSlashRoot(t *testing.T) {
	r := Canonicalize("https://example.com/")
	if r.CanonicalURL != "https://example.com/" {
		t.Fatalf("root path should keep trailing slash, got %q", r.CanonicalURL)
	}
}

func TestCanonicalizeDropsDefaultPort(t *testing.T) {
	r := Canonicalize("http://example.com:80/x")
	if r.Domain != "example.com" {
		t.Fatalf("expected default port dropped, got domain %q", r.Domain)
	}
}
