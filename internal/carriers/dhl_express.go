package carriers

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
)

const dhlExpressEndpoint = "http://www.dhl.com/shipmentTracking"

var dhlExpressTrackingURLs = map[string]string{
	"de": "http://www.dhl.com/en/hidden/component_library/express/local_express/dhl_de_tracking/de/sendungsverfolgung_dhlde.html",
	"en": "http://www.dhl.com/en/hidden/component_library/express/local_express/dhl_de_tracking/en/tracking_dhlde.html",
}

var dhlExpressStatuses = StatusResolver{
	Mode: MatchPrefix,
	Rules: []StatusRule{
		{StatusDelivered, []string{
			"Delivered - Signed",
			"Sendung zugestellt - übernommen",
		}},
		{StatusInTransit, []string{
			"With delivery courier",
			"Sendung in Zustellung",
			"Arrived at",
			"Ankunft in der",
			"Departed Facility",
			"Verlässt DHL-Niederlassung",
			"Transferred through",
			"Sendung im Transit",
			"Processed at",
			"Sendung sortiert",
			"Clearance processing",
			"Verzollung abgeschlossen",
			"Customs status updated",
			"Verzollungsstatus aktualisiert",
			"Shipment picked up",
			"Sendung abgeholt",
		}},
	},
}

// German month and weekday names as they appear in checkpoint dates
var germanDateNames = strings.NewReplacer(
	"Januar", "January",
	"Februar", "February",
	"März", "March",
	"Mai", "May",
	"Juni", "June",
	"Juli", "July",
	"September", "September",
	"Oktober", "October",
	"Dezember", "December",
	"Montag", "Monday",
	"Dienstag", "Tuesday",
	"Mittwoch", "Wednesday",
	"Donnerstag", "Thursday",
	"Freitag", "Friday",
	"Samstag", "Saturday",
	"Sonntag", "Sunday",
)

type dhlExpressResponse struct {
	Results []struct {
		Checkpoints []struct {
			Description string   `json:"description"`
			Location    string   `json:"location"`
			Date        string   `json:"date"`
			Time        string   `json:"time"`
			PIDs        []string `json:"pIds"`
		} `json:"checkpoints"`
		Delivery *struct {
			Status string `json:"status"`
		} `json:"delivery"`
		Signature *struct {
			Signatory string `json:"signatory"`
		} `json:"signature"`
		Pieces *struct {
			PIDs []string `json:"pIds"`
		} `json:"pieces"`
	} `json:"results"`
}

// NewDHLExpress creates the tracker for DHL Express air waybills
func NewDHLExpress(deps *Deps) *Adapter {
	return NewAdapter("DHLExpress", Hooks{
		DefaultLanguage: "de",
		TrackingURL: func(c *Call) string {
			base, ok := dhlExpressTrackingURLs[c.Language]
			if !ok {
				base = dhlExpressTrackingURLs["de"]
			}
			return buildURL(base, url.Values{"AWB": {c.Number}, "brand": {"DHL"}}, c.TrackingParams)
		},
		EndpointURL: func(c *Call) string {
			return buildURL(dhlExpressEndpoint, url.Values{"AWB": {c.Number}, "languageCode": {c.Language}}, c.EndpointParams)
		},
		Parse: parseDHLExpress,
	}, deps)
}

func parseDHLExpress(_ context.Context, c *Call, body string) (*Track, error) {
	var resp dhlExpressResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, decodeError(c, err)
	}
	if len(resp.Results) == 0 {
		return nil, parseError(c, "unable to parse DHL Express tracking data")
	}
	shipment := resp.Results[0]

	zone := carrierZone("Europe/Berlin")
	track := NewTrack()
	for _, cp := range shipment.Checkpoints {
		// "Montag, Juli 18, 2016" + "12:21"
		raw := germanDateNames.Replace(strings.TrimSpace(cp.Date) + " " + strings.TrimSpace(cp.Time))
		date, ok := parseDate(raw, zone, "Monday, January 2, 2006 15:04", "Monday, January 2, 2006 3:04")
		if !ok {
			return nil, parseError(c, "invalid DHL Express checkpoint date %q", raw)
		}

		event := NewEvent(date, dhlExpressStatuses.Resolve(cp.Description), cp.Location, cp.Description)
		if len(cp.PIDs) > 0 {
			event.AddDetail("pieces", cp.PIDs)
		}
		track.AddEvent(event)
	}

	if shipment.Delivery != nil && shipment.Delivery.Status == "delivered" && shipment.Signature != nil {
		track.SetRecipient(shipment.Signature.Signatory)
	}
	if shipment.Pieces != nil && len(shipment.Pieces.PIDs) > 0 {
		track.AddDetail("pieces", shipment.Pieces.PIDs)
	}

	return track, nil
}
