package media

import (
	"strings"
	"unicode"
)

// NormalizeTitle lowercases a title and strips everything that is not a letter or digit,
// collapsing whitespace, so that "Spider-Man: No Way Home" and "spider man no way home" compare equal.
func NormalizeTitle(title string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case !space && b.Len() > 0:
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// CompareTitle reports whether a search result matches the query.
// A year of 0 on either side is treated as unknown and not compared.
func CompareTitle(q Query, title string, year int) bool {
	base := q.Base()
	if year != 0 && base.ReleaseYear != 0 && year != base.ReleaseYear {
		return false
	}
	return NormalizeTitle(title) == NormalizeTitle(base.Title)
}
