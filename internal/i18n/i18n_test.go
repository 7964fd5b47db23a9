package i18n

import "testing"

func TestTranslateWithFallback(t *testing.T) {
	i := New("en")
	if got := i.T("sidebar.queue"); got != "Queue" {
		t.Fatalf("T = %q", got)
	}
	if got := i.T("no.such.key"); got != "no.such.key" {
		t.Fatalf("missing key must echo, got %q", got)
	}
}

func TestTranslateFormatting(t *testing.T) {
	i := New("en")
	if got := i.T("status.step", 3, 30); got != "step 3/30" {
		t.Fatalf("T = %q", got)
	}
}

func TestChineseOverlay(t *testing.T) {
	i := New("zh_CN.UTF-8")
	if i.Locale() != "zh-CN" {
		t.Fatalf("locale = %q", i.Locale())
	}
	if got := i.T("sidebar.model"); got != "模型" {
		t.Fatalf("T = %q", got)
	}
	// Keys absent from the overlay fall back to English.
	if got := i.T("tokens.rate", 12.5); got != "12.5 tok/s" {
		t.Fatalf("T = %q", got)
	}
}

func TestNormalizeLocale(t *testing.T) {
	cases := map[string]string{
		"en_US.UTF-8": "en",
		"zh_TW":       "zh-CN",
		"":            "en",
		"fr_FR":       "fr-FR",
	}
	for in, want := range cases {
		if got := normalizeLocale(in); got != want {
			t.Errorf("normalizeLocale(%q) = %q, want %q", in, got, want)
		}
	}
}
