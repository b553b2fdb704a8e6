package carriers

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"

	"shipment-tracker/internal/fetch"
)

const uspsEndpoint = "https://tools.usps.com/go/TrackConfirmAction"

var uspsStatuses = StatusResolver{
	Mode: MatchContains,
	Rules: []StatusRule{
		{StatusDelivered, []string{"Delivered"}},
		{StatusInTransit, []string{
			"Notice Left",
			"Arrived at Unit",
			"Departed USPS Facility",
			"Arrived at USPS Facility",
			"Processed Through Sort Facility",
			"Origin Post is Preparing Shipment",
			"Acceptance",
			"Out for Delivery",
			"Sorting Complete",
		}},
	},
}

var uspsSpaceComma = regexp.MustCompile(`\s,`)

// NewUSPS creates the tracker for the United States Postal Service. USPS
// rejects browser-like header sets, so the bare alt-http provider is the
// default.
func NewUSPS(deps *Deps) *Adapter {
	return NewAdapter("USPS", Hooks{
		DefaultProvider: fetch.AltHTTP,
		TrackingURL: func(c *Call) string {
			return buildURL(uspsEndpoint, url.Values{"qtc_tLabels1": {c.Number}}, c.TrackingParams)
		},
		Parse: parseUSPS,
	}, deps)
}

func parseUSPS(_ context.Context, c *Call, body string) (*Track, error) {
	doc, err := parseHTML(c, body)
	if err != nil {
		return nil, err
	}

	table := htmlquery.FindOne(doc, "//table[@id='tc-hits']")
	if table == nil {
		return nil, parseError(c, "unable to parse USPS tracking data")
	}

	zone := carrierZone("America/New_York")
	track := NewTrack()
	var (
		lastLocation string
		lastDate     time.Time
	)
	for _, row := range htmlquery.Find(table, ".//tbody//tr[contains(@class,'detail-wrapper')]") {
		cols := cells(row)
		if len(cols) < 3 {
			return nil, parseError(c, "unexpected USPS event row with %d cells", len(cols))
		}
		for i := range cols {
			cols[i] = uspsSpaceComma.ReplaceAllString(cols[i], ",")
		}

		// "November 9, 2015, 10:50 am", empty on follow-up rows of the same day
		date := lastDate
		if cols[0] != "" {
			raw := strings.NewReplacer(" am", " AM", " pm", " PM").Replace(cols[0])
			parsed, ok := parseDate(raw, zone,
				"January 2, 2006, 3:04 PM",
				"January 2, 2006 3:04 PM",
				"January 2, 2006",
			)
			if !ok {
				return nil, parseError(c, "invalid USPS event date %q", cols[0])
			}
			date, lastDate = parsed, parsed
		}

		location := cols[2]
		if location != "" {
			lastLocation = location
		} else {
			location = lastLocation
		}

		track.AddEvent(NewEvent(date, uspsStatuses.Resolve(cols[1]), location, cols[1]))
	}

	return track, nil
}
