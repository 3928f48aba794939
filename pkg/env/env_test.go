package env

import "testing"

func TestFirstPrefersEarlierKeys(t *testing.T) {
	t.Setenv("STOREFRONT_TEST_A", "")
	t.Setenv("STOREFRONT_TEST_B", " b ")
	t.Setenv("STOREFRONT_TEST_C", "c")

	if got := First("fallback", "STOREFRONT_TEST_A", "STOREFRONT_TEST_B", "STOREFRONT_TEST_C"); got != "b" {
		t.Fatalf("expected b, got %q", got)
	}
	if got := Get("STOREFRONT_TEST_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}
