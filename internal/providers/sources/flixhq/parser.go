package flixhq

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// result is one card on a search page.
type result struct {
	ID    string // e.g. "movie/free-the-exorcist-hd-75043"
	Title string
	Year  int
	Show  bool
}

type season struct {
	Number int
	ID     string
}

type episode struct {
	Number int
	Title  string
	ID     string
}

type server struct {
	Name string
	ID   string
}

var episodeNumberPattern = regexp.MustCompile(`(?i)\beps?\.?\s*(\d+)`)

// parseSearchResults extracts search results from a goquery document.
// Uses DOM parsing instead of sed/grep on raw HTML to prevent injection.
func parseSearchResults(doc *goquery.Document) []result {
	var results []result

	doc.Find(".film_list-wrap .flw-item").Each(func(_ int, s *goquery.Selection) {
		link := s.Find(".film-name a")
		r := result{Title: strings.TrimSpace(link.Text())}

		href, exists := link.Attr("href")
		if exists {
			r.ID = extractID(href)
		}
		r.Show = strings.Contains(href, "/tv/") || strings.EqualFold(strings.TrimSpace(s.Find(".fd-infor .fdi-type").Text()), "tv")

		// The year is the only four-digit number among the metadata spans.
		s.Find(".fd-infor span").Each(func(_ int, span *goquery.Selection) {
			text := strings.TrimSpace(span.Text())
			if y, err := strconv.Atoi(text); err == nil && len(text) == 4 {
				r.Year = y
			}
		})

		if r.Title != "" && r.ID != "" {
			results = append(results, r)
		}
	})

	return results
}

// parseLastPage returns the number of the last search page, or 1 without pagination.
func parseLastPage(doc *goquery.Document) int {
	last := 1
	doc.Find(".pagination a[href]").Each(func(_ int, s *goquery.Selection) {
		u, err := url.Parse(s.AttrOr("href", ""))
		if err != nil {
			return
		}
		if n, err := strconv.Atoi(u.Query().Get("page")); err == nil && n > last {
			last = n
		}
	})
	return last
}

// parseSeasons extracts season information from a show page.
func parseSeasons(doc *goquery.Document) []season {
	var seasons []season

	doc.Find(".dropdown-menu a, .dropdown-item").Each(func(_ int, s *goquery.Selection) {
		dataID, exists := s.Attr("data-id")
		if !exists {
			return
		}

		num := 0
		if parts := strings.Fields(s.Text()); len(parts) >= 2 {
			num, _ = strconv.Atoi(parts[len(parts)-1])
		}
		if num > 0 {
			seasons = append(seasons, season{Number: num, ID: dataID})
		}
	})

	return seasons
}

// parseEpisodes extracts episode information from a season page.
func parseEpisodes(doc *goquery.Document) []episode {
	var episodes []episode

	doc.Find(".nav-item a").Each(func(_ int, s *goquery.Selection) {
		dataID, exists := s.Attr("data-id")
		if !exists {
			return
		}

		title := strings.TrimSpace(s.AttrOr("title", ""))
		if title == "" {
			title = strings.TrimSpace(s.Text())
		}

		m := episodeNumberPattern.FindStringSubmatch(title)
		if m == nil {
			return
		}
		num, _ := strconv.Atoi(m[1])

		episodes = append(episodes, episode{Number: num, Title: title, ID: dataID})
	})

	return episodes
}

// parseServers extracts server options from a content page.
// Movie endpoints use data-linkid, TV episode endpoints use data-id.
func parseServers(doc *goquery.Document) []server {
	var servers []server

	doc.Find(".link-item, .server-item a, [data-id]").Each(func(_ int, s *goquery.Selection) {
		dataID, exists := s.Attr("data-linkid")
		if !exists {
			dataID, exists = s.Attr("data-id")
		}
		if !exists {
			return
		}

		name := strings.TrimSpace(s.Text())
		if name == "" {
			name = s.AttrOr("title", "Unknown")
		}
		name = strings.TrimSpace(strings.TrimPrefix(name, "Server"))

		servers = append(servers, server{Name: name, ID: dataID})
	})

	return servers
}

// extractID extracts the content ID from a URL path.
// e.g., "/movie/free-the-exorcist-hd-75043" -> "movie/free-the-exorcist-hd-75043"
func extractID(urlPath string) string {
	id := strings.TrimPrefix(urlPath, "/")
	if idx := strings.Index(id, "?"); idx != -1 {
		id = id[:idx]
	}
	return id
}

// extractNumericID extracts the trailing numeric ID from a path.
// e.g., "movie/free-the-exorcist-hd-75043" -> "75043"
func extractNumericID(id string) string {
	parts := strings.Split(id, "-")
	last := parts[len(parts)-1]
	if _, err := strconv.Atoi(last); err == nil {
		return last
	}
	return ""
}
