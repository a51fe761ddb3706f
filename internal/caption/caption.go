// Package caption maps subtitle labels scraped from origin sites to language codes
// and picks captions for a preferred language.
package caption

import (
	"path"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"reelscout/internal/media"
)

var (
	namesOnce sync.Once
	names     map[string]string
)

// loadNames indexes the English and native names of every language x/text can display.
func loadNames() {
	names = make(map[string]string)
	english := display.English.Languages()
	for _, tag := range display.Supported.Tags() {
		base, _ := tag.Base()
		code := base.String()
		for _, name := range []string{english.Name(tag), display.Self.Name(tag), english.Name(base)} {
			if name == "" {
				continue
			}
			key := strings.ToLower(name)
			if _, ok := names[key]; !ok {
				names[key] = code
			}
		}
	}
}

// LabelToLanguageCode maps a label such as "English", "English - SDH", "Español" or
// "pt-BR" to a two-letter ISO 639-1 code (three letters when no two-letter code exists).
// It returns "" when the label names no known language.
func LabelToLanguageCode(label string) string {
	namesOnce.Do(loadNames)

	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return ""
	}
	if code, ok := names[label]; ok {
		return code
	}

	short := label
	if i := strings.IndexAny(short, "-([.,_:"); i > 0 && !isTagLike(label) {
		short = strings.TrimSpace(short[:i])
	}
	if code, ok := names[short]; ok {
		return code
	}

	if isTagLike(short) {
		if tag, err := language.Parse(short); err == nil {
			base, conf := tag.Base()
			if conf != language.No {
				return base.String()
			}
		}
	}
	return ""
}

// isTagLike reports whether label looks like a BCP 47 tag rather than a name.
func isTagLike(label string) bool {
	first, _, _ := strings.Cut(strings.ReplaceAll(label, "_", "-"), "-")
	return len(first) == 2 || len(first) == 3
}

// TypeFromURL returns "vtt" or "srt" from a caption file extension, or "" for anything else.
func TypeFromURL(rawURL string) string {
	p, _, _ := strings.Cut(rawURL, "?")
	switch strings.ToLower(path.Ext(p)) {
	case ".vtt":
		return "vtt"
	case ".srt":
		return "srt"
	}
	return ""
}

// Filter returns the captions in language, which may be a code or a label.
// An empty language returns every caption.
func Filter(captions []media.Caption, lang string) []media.Caption {
	if lang == "" {
		return captions
	}

	want := LabelToLanguageCode(lang)
	if want == "" {
		want = strings.ToLower(lang)
	}

	var matched []media.Caption
	for _, c := range captions {
		if strings.EqualFold(c.Language, want) || LabelToLanguageCode(c.Language) == want {
			matched = append(matched, c)
		}
	}
	return matched
}

// BestMatch returns the best caption for language.
// Prefers captions without CORS restrictions, then WebVTT over SRT.
func BestMatch(captions []media.Caption, lang string) *media.Caption {
	filtered := Filter(captions, lang)
	if len(filtered) == 0 {
		return nil
	}

	best := 0
	for i, c := range filtered[1:] {
		if score(c) > score(filtered[best]) {
			best = i + 1
		}
	}
	return &filtered[best]
}

func score(c media.Caption) int {
	s := 0
	if !c.HasCorsRestrictions {
		s += 2
	}
	if c.Type == "vtt" {
		s++
	}
	return s
}
