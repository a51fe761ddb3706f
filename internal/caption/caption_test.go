package caption

import (
	"testing"

	"reelscout/internal/media"
)

func TestLabelToLanguageCode(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"English", "en"},
		{"english", "en"},
		{"English - SDH", "en"},
		{"Spanish", "es"},
		{"Español", "es"},
		{"Portuguese (Brazil)", "pt"},
		{"French.srt", "fr"},
		{"pt-BR", "pt"},
		{"en", "en"},
		{"fr:hi", "fr"},
		{"Klingon-ish gibberish", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			if got := LabelToLanguageCode(tt.label); got != tt.want {
				t.Errorf("LabelToLanguageCode(%q) = %q, want %q", tt.label, got, tt.want)
			}
		})
	}
}

func TestTypeFromURL(t *testing.T) {
	tests := map[string]string{
		"https://cdn.example/subs/en.vtt":        "vtt",
		"https://cdn.example/subs/en.VTT?t=1":    "vtt",
		"https://cdn.example/subs/fr.srt":        "srt",
		"https://cdn.example/subs/track.ass":     "",
		"https://cdn.example/subs/noext?x=a.vtt": "",
	}
	for in, want := range tests {
		if got := TypeFromURL(in); got != want {
			t.Errorf("TypeFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFilter(t *testing.T) {
	caps := []media.Caption{
		{ID: "1", Language: "en"},
		{ID: "2", Language: "en"},
		{ID: "3", Language: "es"},
		{ID: "4", Language: "fr"},
	}

	tests := []struct {
		lang     string
		expected int
	}{
		{"english", 2},
		{"en", 2},
		{"Spanish", 1},
		{"fr", 1},
		{"german", 0},
		{"", 4},
	}

	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			got := Filter(caps, tt.lang)
			if len(got) != tt.expected {
				t.Errorf("Filter(%q) returned %d captions, want %d", tt.lang, len(got), tt.expected)
			}
		})
	}
}

func TestBestMatch(t *testing.T) {
	caps := []media.Caption{
		{ID: "restricted", Language: "en", Type: "vtt", HasCorsRestrictions: true},
		{ID: "srt", Language: "en", Type: "srt"},
		{ID: "vtt", Language: "en", Type: "vtt"},
		{ID: "es", Language: "es", Type: "srt"},
	}

	best := BestMatch(caps, "english")
	if best == nil {
		t.Fatal("BestMatch returned nil for english")
	}
	if best.ID != "vtt" {
		t.Errorf("BestMatch preferred %q, want unrestricted vtt", best.ID)
	}

	best = BestMatch(caps, "es")
	if best == nil || best.ID != "es" {
		t.Errorf("BestMatch(es) = %+v", best)
	}

	if best := BestMatch(caps, "japanese"); best != nil {
		t.Error("BestMatch should return nil for unmatched language")
	}
}
