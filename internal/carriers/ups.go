package carriers

import (
	"context"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

const upsEndpoint = "http://wwwapps.ups.com/WebTracking/track"

var upsStatuses = StatusResolver{
	Mode: MatchContains,
	Rules: []StatusRule{
		{StatusDelivered, []string{
			"Delivered",
			"Zugestellt",
		}},
		{StatusInTransit, []string{
			"Auftrag verarbeitet",
			"Ready for UPS",
			"Scan",
			"Out For Delivery",
			"receiver requested a hold for a future delivery date",
			"receiver was not available at the time of the first delivery attempt",
			"war beim 1. Zustellversuch nicht anwesend",
			"Adresse wurde korrigiert und die Zustellung neu terminiert",
			"The address has been corrected",
			"A final attempt will be made",
			"ltiger Versuch erfolgt",
		}},
		{StatusWarning, []string{
			"attempting to obtain a new delivery address",
			"eine neue Zustelladresse für den Empf",
			"nderung für dieses Paket ist in Bearbeitung",
			"A delivery change for this package is in progress",
			"The receiver was not available at the time of the final delivery attempt",
		}},
		{StatusException, []string{
			"Exception",
			"Adressfehlers konnte die Sendung nicht zugestellt",
			"nger ist unbekannt",
			"The address is incomplete",
			"ist falsch",
			"is incorrect",
			"ltigen Zustellversuch nicht anwesend",
			"receiver was not available at the time of the final delivery attempt",
		}},
	},
}

var upsMeridiem = strings.NewReplacer("A.M.", "AM", "P.M.", "PM", "a.m.", "AM", "p.m.", "PM", "Uhr", "")

// NewUPS creates the tracker for UPS
func NewUPS(deps *Deps) *Adapter {
	return NewAdapter("UPS", Hooks{
		DefaultLanguage: "de",
		TrackingURL: func(c *Call) string {
			loc := "en_US"
			if c.Language == "de" {
				loc = "de_DE"
			}
			return buildURL(upsEndpoint, url.Values{"loc": {loc}, "track": {"yes"}, "trackNums": {c.Number}}, c.TrackingParams)
		},
		Parse: parseUPS,
	}, deps)
}

func parseUPS(_ context.Context, c *Call, body string) (*Track, error) {
	doc, err := parseHTML(c, body)
	if err != nil {
		return nil, err
	}

	table := htmlquery.FindOne(doc, "//table[@class='dataTable']")
	if table == nil {
		return nil, parseError(c, "unable to parse UPS tracking data")
	}

	zone := carrierZone("Europe/Berlin")
	track := NewTrack()
	lastLocation := ""
	for i, row := range htmlquery.Find(table, ".//tr") {
		if i == 0 {
			continue
		}
		cols := cells(row)
		if len(cols) < 4 {
			return nil, parseError(c, "unexpected UPS event row with %d cells", len(cols))
		}

		location := cols[0]
		if location != "" {
			lastLocation = location
		} else {
			location = lastLocation
		}

		raw := upsMeridiem.Replace(cols[1] + " " + cols[2])
		date, ok := parseDate(raw, zone,
			"02.01.2006 15:04",
			"01/02/2006 3:04 PM",
			"01/02/2006 15:04",
			"02.01.2006",
			"01/02/2006",
		)
		if !ok {
			return nil, parseError(c, "invalid UPS event date %q", raw)
		}

		status := upsStatuses.Resolve(cols[3])
		track.AddEvent(NewEvent(date, status, location, cols[3]))

		if status == StatusDelivered {
			if recipient, ok := upsRecipient(doc); ok {
				track.SetRecipient(recipient)
			}
		}
	}

	return track, nil
}

func upsRecipient(doc *html.Node) (string, bool) {
	nodes := htmlquery.Find(doc, "//fieldset//dl/dt")
	if len(nodes) < 4 {
		return "", false
	}
	return nodeText(nodes[3]), true
}
