package megacloud

import (
	"errors"
	"regexp"
	"strings"
)

var errNoClientKey = errors.New("no obfuscation pattern matched")

// keyPattern locates one obfuscated form of the client key and pulls the key out of the match.
type keyPattern struct {
	re      *regexp.Regexp
	extract func(match string) string
}

var (
	quotedValue  = regexp.MustCompile(`"[a-zA-Z0-9]+"`)
	commentValue = regexp.MustCompile(`:[a-zA-Z0-9]+ `)
	lkDBParts    = []*regexp.Regexp{
		regexp.MustCompile(`x:\s+["'][a-zA-Z0-9]+["']`),
		regexp.MustCompile(`y:\s+["'][a-zA-Z0-9]+["']`),
		regexp.MustCompile(`z:\s+["'][a-zA-Z0-9]+["']`),
	}
)

// keyPatterns are tried in order; the embed host rotates between them.
var keyPatterns = []keyPattern{
	// <meta name="_gg_fb" content="{KEY}">
	{regexp.MustCompile(`<meta name="_gg_fb" content="[a-zA-Z0-9]+">`), unquote},
	// <!-- _is_th:{KEY} -->
	{regexp.MustCompile(`<!--\s+_is_th:[0-9a-zA-Z]+\s+-->`), func(m string) string {
		return strings.TrimSpace(strings.TrimPrefix(commentValue.FindString(m), ":"))
	}},
	// <script>window._lk_db = {x: "{P1}", y: "{P2}", z: "{P3}"};</script>
	{regexp.MustCompile(`<script>window\._lk_db\s+=\s+\{[xyz]:\s+["'][a-zA-Z0-9]+["'],\s+[xyz]:\s+["'][a-zA-Z0-9]+["'],\s+[xyz]:\s+["'][a-zA-Z0-9]+["']\};</script>`), joinLkDB},
	// <div data-dpi="{KEY}" ...></div>
	{regexp.MustCompile(`<div\s+data-dpi="[0-9a-zA-Z]+"\s+[^>]*></div>`), unquote},
	// <script nonce="{KEY}">
	{regexp.MustCompile(`<script nonce="[0-9a-zA-Z]+">`), unquote},
	// <script>window._xy_ws = "{KEY}";</script>
	{regexp.MustCompile(`<script>window\._xy_ws = ['"\x60][0-9a-zA-Z]+['"\x60];</script>`), func(m string) string {
		_, rest, _ := strings.Cut(m, "= ")
		return strings.Trim(strings.TrimSuffix(rest, ";</script>"), "'\"`")
	}},
}

// extractClientKey finds the client key the getSources endpoint expects in an embed page.
func extractClientKey(html string) (string, error) {
	for _, p := range keyPatterns {
		match := p.re.FindString(html)
		if match == "" {
			continue
		}
		if key := p.extract(match); key != "" {
			return key, nil
		}
		return "", errors.New("matched an obfuscation pattern but found no key in it")
	}
	return "", errNoClientKey
}

func unquote(match string) string {
	return strings.Trim(quotedValue.FindString(match), `"`)
}

// joinLkDB concatenates the x, y and z parts of a split key in that order.
func joinLkDB(match string) string {
	var b strings.Builder
	for _, re := range lkDBParts {
		_, part, _ := strings.Cut(re.FindString(match), ":")
		part = strings.Trim(strings.TrimSpace(part), `"'`)
		if part == "" {
			return ""
		}
		b.WriteString(part)
	}
	return b.String()
}
