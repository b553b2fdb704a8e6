package carriers

import (
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"
	"unicode/utf8"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
	"golang.org/x/text/encoding/charmap"
)

var (
	multiSpace  = regexp.MustCompile(`[\s\p{Zs}]+`)
	lettersOnly = regexp.MustCompile(`[^\d.:/\s-]`)
)

// ensureUTF8 returns s unchanged when it is valid UTF-8 and otherwise
// decodes it as ISO-8859-1, which is what carrier pages fall back to.
func ensureUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().String(s)
	if err != nil {
		return strings.ToValidUTF8(s, "")
	}
	return decoded
}

// collapse trims s and folds runs of whitespace, including non-breaking
// spaces, into a single space
func collapse(s string) string {
	return strings.TrimSpace(multiSpace.ReplaceAllString(s, " "))
}

// parseHTML parses a carrier page
func parseHTML(c *Call, body string) (*html.Node, error) {
	doc, err := htmlquery.Parse(strings.NewReader(body))
	if err != nil {
		return nil, decodeError(c, err)
	}
	return doc, nil
}

// nodeText returns the normalized text content of n
func nodeText(n *html.Node) string {
	if n == nil {
		return ""
	}
	return collapse(htmlquery.InnerText(n))
}

// cells returns the normalized text of every td element directly under row
func cells(row *html.Node) []string {
	var out []string
	for _, td := range htmlquery.Find(row, "./td") {
		out = append(out, nodeText(td))
	}
	return out
}

// parseDate tries each layout in turn using loc for zone-less values
func parseDate(value string, loc *time.Location, layouts ...string) (time.Time, bool) {
	value = collapse(value)
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// stripLetters removes weekday names, "Uhr" suffixes and similar noise from
// numeric date strings
func stripLetters(s string) string {
	return collapse(lettersOnly.ReplaceAllString(s, ""))
}

func carrierZone(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
