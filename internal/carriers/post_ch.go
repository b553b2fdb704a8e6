package carriers

import (
	"context"
	"net/url"
	"regexp"

	"github.com/antchfx/htmlquery"
)

const postCHEndpoint = "https://service.post.ch/EasyTrack/submitParcelData.do"

var postCHStatuses = StatusResolver{
	Mode: MatchContains,
	Rules: []StatusRule{
		{StatusDelivered, []string{
			"Delivered",
			"Zugestellt",
		}},
		{StatusInTransit, []string{
			"Mailed",
			"Aufgabe",
			"Sorting",
			"Sortierung",
			"Postal customs clearance",
			"Im Postverzollungsprozess",
			"Handed to customs",
			"An Zoll übergeben",
			"Arrival at border point",
			"Ankunft Grenzstelle Bestimmungsland",
			"Departure from border point",
			"Abgang Grenzstelle Aufgabeland",
			"Registered for collection",
			"Zur Abholung gemeldet",
			"Arrival at delivery post office",
			"Ankunft Zustellstelle",
		}},
	},
}

// Swiss Post prefixes some cell values with internal message ids
var postCHInternalToken = regexp.MustCompile(`ITM_IMP_\S*\s`)

// NewPostCH creates the tracker for Swiss Post
func NewPostCH(deps *Deps) *Adapter {
	return NewAdapter("PostCH", Hooks{
		DefaultLanguage: "de",
		TrackingURL: func(c *Call) string {
			return buildURL(postCHEndpoint, url.Values{"formattedParcelCodes": {c.Number}, "lang": {c.Language}}, c.TrackingParams)
		},
		Parse: parsePostCH,
	}, deps)
}

func parsePostCH(_ context.Context, c *Call, body string) (*Track, error) {
	doc, err := parseHTML(c, body)
	if err != nil {
		return nil, err
	}

	table := htmlquery.FindOne(doc, "//table[contains(@class,'events_view')]")
	if table == nil {
		return nil, parseError(c, "unable to parse Swiss Post tracking data")
	}

	zone := carrierZone("Europe/Zurich")
	track := NewTrack()
	lastLocation := ""
	for _, row := range htmlquery.Find(table, ".//tbody//tr") {
		cols := cells(row)
		if len(cols) < 4 {
			return nil, parseError(c, "unexpected Swiss Post event row with %d cells", len(cols))
		}
		for i := range cols {
			cols[i] = collapse(postCHInternalToken.ReplaceAllString(cols[i]+" ", ""))
		}

		// "Wed 18.07.2015" and "17:26"
		raw := stripLetters(cols[0]) + " " + cols[1]
		date, ok := parseDate(raw, zone, "02.01.2006 15:04", "02.01.2006")
		if !ok {
			return nil, parseError(c, "invalid Swiss Post event date %q", raw)
		}

		location := cols[3]
		if location != "" {
			lastLocation = location
		} else {
			location = lastLocation
		}

		track.AddEvent(NewEvent(date, postCHStatuses.Resolve(cols[2]), location, cols[2]))
	}

	return track, nil
}
