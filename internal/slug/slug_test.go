package slug

import "testing"

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Cash Source":     "cash_source",
		" cash-source ":   "cash_source",
		"Element":         "element",
		"__OFX__":         "ofx",
		"Sub  Account #2": "sub_account_2",
		"":                "",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsSlug(t *testing.T) {
	if !IsSlug("ofx") || !IsSlug("amazon") || !IsSlug("bank_csv") {
		t.Fatalf("expected valid slugs")
	}
	if IsSlug("O") || IsSlug("has space") || IsSlug("UPPER") {
		t.Fatalf("expected invalid slugs")
	}
}
