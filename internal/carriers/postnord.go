package carriers

import (
	"context"
	"encoding/json"
	"net/url"
	"time"
)

const (
	postNordEndpoint    = "https://api2.postnord.com/rest/shipment/v5/trackandtrace/findByIdentifier.json"
	postNordTrackingURL = "https://tracking.postnord.com/"
)

var postNordStatuses = StatusResolver{
	Mode: MatchExact,
	Rules: []StatusRule{
		{StatusInTransit, []string{"INFORMED", "EN_ROUTE", "OTHER"}},
		{StatusDelivered, []string{"DELIVERED"}},
		{StatusPickup, []string{"AVAILABLE_FOR_DELIVERY"}},
	},
}

type postNordResponse struct {
	TrackingInformationResponse struct {
		Shipments []struct {
			Items []struct {
				Events []struct {
					EventDescription string `json:"eventDescription"`
					EventTime        string `json:"eventTime"`
					Status           string `json:"status"`
					Location         struct {
						City        string `json:"city"`
						DisplayName string `json:"displayName"`
						Country     string `json:"country"`
					} `json:"location"`
				} `json:"events"`
			} `json:"items"`
		} `json:"shipments"`
	} `json:"TrackingInformationResponse"`
}

// NewPostNord creates the tracker for the PostNord track and trace API. The
// API key is taken from Deps.APIKey("postnord") and only ever sent to the
// API endpoint; the tracking URL is the public tracking page.
func NewPostNord(deps *Deps) *Adapter {
	apiKey := deps.APIKey("postnord")
	return NewAdapter("PostNord", Hooks{
		DefaultLanguage: "en",
		TrackingURL: func(c *Call) string {
			return buildURL(postNordTrackingURL+c.Language+"/", url.Values{"id": {c.Number}}, c.TrackingParams)
		},
		EndpointURL: func(c *Call) string {
			return buildURL(postNordEndpoint, url.Values{
				"apikey": {apiKey},
				"id":     {c.Number},
				"locale": {c.Language},
			}, c.EndpointParams)
		},
		Parse: parsePostNord,
	}, deps)
}

func parsePostNord(_ context.Context, c *Call, body string) (*Track, error) {
	var resp postNordResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, decodeError(c, err)
	}
	shipments := resp.TrackingInformationResponse.Shipments
	if len(shipments) == 0 || len(shipments[0].Items) == 0 {
		return nil, parseError(c, "unable to parse PostNord tracking data")
	}

	zone := carrierZone("Europe/Stockholm")
	track := NewTrack()
	for _, e := range shipments[0].Items[0].Events {
		location := e.Location.City
		if location == "" {
			location = e.Location.DisplayName
		}
		if location == "" {
			location = e.Location.Country
		}

		date, ok := parseDate(e.EventTime, zone, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04")
		if !ok {
			return nil, parseError(c, "invalid PostNord event time %q", e.EventTime)
		}

		track.AddEvent(NewEvent(date, postNordStatuses.Resolve(e.Status), location, e.EventDescription))
	}

	return track, nil
}
