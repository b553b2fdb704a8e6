package carriers

import (
	"context"
	"net/url"
	"regexp"

	"github.com/antchfx/htmlquery"
)

var postATEndpoints = map[string]string{
	"de": "https://www.post.at/sendungsverfolgung.php/details",
	"en": "https://www.post.at/en/track_trace.php/details",
}

// "Datum: 19.07.2016 10:37 Sendung zugestellt; Wien"
var postATRow = regexp.MustCompile(`(?i)(date|datum): ([\d.:\s]+)(.*?)(?:; (.*)|$)`)

var postATStatuses = StatusResolver{
	Mode: MatchContainsFold,
	Rules: []StatusRule{
		{StatusDelivered, []string{
			"Delivered",
			"Zugestellt",
		}},
		{StatusInTransit, []string{
			"Item posted abroad",
			"Postaufgabe im Ausland",
			"Item ready for international transport",
			"Sendung für Auslandstransport bereit",
			"Item in process of delivery",
			"Sendung in Zustellung",
			"Item being processed in Austria",
			"Sendung in Bearbeitung Österreich",
			"Item arrived in Austria",
			"Sendung in Österreich angekommen",
			"soon ready for pick up",
			"In Kürze abholbereit",
		}},
		{StatusPickup, []string{
			"ready for pick up",
			"Sendung abholbereit",
		}},
	},
}

// NewPostAT creates the tracker for Austrian Post
func NewPostAT(deps *Deps) *Adapter {
	return NewAdapter("PostAT", Hooks{
		DefaultLanguage: "de",
		TrackingURL: func(c *Call) string {
			endpoint, ok := postATEndpoints[c.Language]
			if !ok {
				endpoint = postATEndpoints["de"]
			}
			return buildURL(endpoint, url.Values{"pnum1": {c.Number}}, c.TrackingParams)
		},
		Parse: parsePostAT,
	}, deps)
}

func parsePostAT(_ context.Context, c *Call, body string) (*Track, error) {
	doc, err := parseHTML(c, body)
	if err != nil {
		return nil, err
	}

	history := htmlquery.FindOne(doc, "//div[@class='sendungsstatus-history']")
	if history == nil {
		return nil, parseError(c, "could not parse tracking information")
	}

	zone := carrierZone("Europe/Vienna")
	track := NewTrack()
	for _, row := range htmlquery.Find(history, ".//ul//li") {
		text := nodeText(row)
		m := postATRow.FindStringSubmatch(text)
		if m == nil {
			return nil, parseError(c, "unexpected Austrian Post history entry %q", text)
		}

		date, ok := parseDate(m[2], zone, "02.01.2006 15:04", "02.01.2006 15:04:05", "02.01.2006")
		if !ok {
			return nil, parseError(c, "invalid Austrian Post event date %q", m[2])
		}
		description := collapse(m[3])
		track.AddEvent(NewEvent(date, postATStatuses.Resolve(description), collapse(m[4]), description))
	}

	return track, nil
}
