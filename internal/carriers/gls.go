package carriers

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
)

const (
	glsEndpoint          = "https://gls-group.eu/app/service/open/rest/DE/{language}/rstt001"
	glsParcelShopDetails = "http://api.customlocation.nokia.com/v1/search/attribute"
)

var glsTrackingURLs = map[string]string{
	"de": "https://gls-group.eu/DE/de/paketverfolgung",
	"en": "https://gls-group.eu/DE/en/parcel-tracking",
}

// GLS reports discrete event numbers instead of free text
var glsStatuses = StatusResolver{
	Mode: MatchExact,
	Rules: []StatusRule{
		{StatusDelivered, []string{"3.120", "3.121", "3.0"}},
		{StatusInTransit, []string{
			"0.0", "0.100", "1.0", "11.0", "2.0", "2.106",
			"2.29", "4.40", "90.132", "35.40", "8.0", "6.211",
		}},
		{StatusPickup, []string{"3.124"}},
	},
}

type glsResponse struct {
	ExceptionText string `json:"exceptionText"`
	TUStatus      []struct {
		History []struct {
			EvtDscr string `json:"evtDscr"`
			Date    string `json:"date"`
			Time    string `json:"time"`
			Address struct {
				City        string `json:"city"`
				CountryName string `json:"countryName"`
			} `json:"address"`
		} `json:"history"`
		ProgressBar struct {
			EvtNos []string `json:"evtNos"`
		} `json:"progressBar"`
		Signature *struct {
			Value string `json:"value"`
		} `json:"signature"`
		ParcelShop *struct {
			PSID string `json:"psID"`
		} `json:"parcelShop"`
	} `json:"tuStatus"`
}

// ParcelShop describes the GLS shop holding a parcel for pick up
type ParcelShop struct {
	Name           string   `json:"name"`
	Street         string   `json:"street"`
	Zip            string   `json:"zip"`
	City           string   `json:"city"`
	Phone          string   `json:"phone"`
	WorkingHours   []string `json:"workingHours"`
	AdditionalInfo string   `json:"additionalInfo,omitempty"`
}

type glsParcelShopResponse struct {
	Locations []struct {
		Name1            string `json:"name1"`
		Street           string `json:"street"`
		PostalCode       string `json:"postalCode"`
		City             string `json:"city"`
		Phone            string `json:"phone"`
		Description      string `json:"description"`
		CustomAttributes []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"customAttributes"`
	} `json:"locations"`
}

// NewGLS creates the tracker for GLS Germany. Parcels waiting in a parcel
// shop trigger a second request for the shop details.
func NewGLS(deps *Deps) *Adapter {
	return NewAdapter("GLS", Hooks{
		DefaultLanguage: "de",
		TrackingURL: func(c *Call) string {
			base, ok := glsTrackingURLs[c.Language]
			if !ok {
				base = glsTrackingURLs["de"]
			}
			return buildURL(base, url.Values{"match": {c.Number}}, c.TrackingParams)
		},
		EndpointURL: func(c *Call) string {
			endpoint := strings.Replace(glsEndpoint, "{language}", c.Language, 1)
			return buildURL(endpoint, url.Values{"match": {c.Number}}, c.EndpointParams)
		},
		Parse: parseGLS,
	}, deps)
}

func parseGLS(ctx context.Context, c *Call, body string) (*Track, error) {
	var resp glsResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, decodeError(c, err)
	}
	if resp.ExceptionText != "" {
		return nil, parseError(c, "unable to retrieve tracking data: %s", resp.ExceptionText)
	}
	if len(resp.TUStatus) == 0 {
		return nil, parseError(c, "unable to parse GLS tracking data")
	}
	status := resp.TUStatus[0]
	if len(status.ProgressBar.EvtNos) < len(status.History) {
		return nil, parseError(c, "GLS history has %d entries but %d event numbers",
			len(status.History), len(status.ProgressBar.EvtNos))
	}

	zone := carrierZone("Europe/Berlin")
	track := NewTrack()
	for i, item := range status.History {
		raw := item.Date + " " + item.Time
		date, ok := parseDate(raw, zone,
			"2006-01-02 15:04:05",
			"2006-01-02 15:04",
			"02.01.2006 15:04:05",
			"02.01.2006 15:04",
		)
		if !ok {
			return nil, parseError(c, "invalid GLS event date %q", raw)
		}

		eventNumber := status.ProgressBar.EvtNos[i]
		eventStatus := glsStatuses.Resolve(eventNumber)
		location := item.Address.City + ", " + item.Address.CountryName

		event := NewEvent(date, eventStatus, location, item.EvtDscr)
		event.AddDetail("eventNumber", eventNumber)
		track.AddEvent(event)

		switch eventStatus {
		case StatusDelivered:
			if status.Signature != nil {
				track.SetRecipient(status.Signature.Value)
			}
		case StatusPickup:
			if status.ParcelShop == nil || status.ParcelShop.PSID == "" {
				break
			}
			shop, err := c.Memo("gls.parcelShop", func() (any, error) {
				return glsParcelShop(ctx, c, status.ParcelShop.PSID)
			})
			if err != nil {
				return nil, err
			}
			if shop != nil {
				track.AddDetail("parcelShop", shop)
			}
		}
	}

	return track, nil
}

func glsParcelShop(ctx context.Context, c *Call, shopID string) (any, error) {
	query := url.Values{
		"jsonpCallback":  {"C"},
		"appId":          {"s0Ej52VXrLa6AUJEenti"},
		"layerId":        {"48"},
		"query":          {"[like]/name3/" + shopID},
		"rangeQuery":     {""},
		"limit":          {"1"},
		"_1372940610913": {""},
	}
	body, err := c.Get(ctx, glsParcelShopDetails+"?"+query.Encode())
	if err != nil {
		return nil, err
	}

	// JSONP: C({...});
	body = strings.TrimSpace(body)
	start, end := strings.Index(body, "("), strings.LastIndex(body, ")")
	if start < 0 || end <= start {
		return nil, parseError(c, "unexpected GLS parcel shop response")
	}

	var resp glsParcelShopResponse
	if err := json.Unmarshal([]byte(body[start+1:end]), &resp); err != nil {
		return nil, decodeError(c, err)
	}
	if len(resp.Locations) == 0 {
		return nil, nil
	}

	loc := resp.Locations[0]
	shop := &ParcelShop{
		Name:         loc.Name1,
		Street:       loc.Street,
		Zip:          loc.PostalCode,
		City:         loc.City,
		Phone:        loc.Phone,
		WorkingHours: glsWorkingHours(loc.Description),
	}
	for _, attr := range loc.CustomAttributes {
		if attr.Name == "ADDITIONAL_INFO" {
			shop.AdditionalInfo = attr.Value
			break
		}
	}
	return shop, nil
}

// "Mo: 09:00-12:00|#14:00-18:00|Di: ..." becomes one entry per day
func glsWorkingHours(description string) []string {
	hours := strings.ReplaceAll(description, "|#", "; ")
	hours = strings.ReplaceAll(hours, "#", "")
	return strings.Split(hours, "|")
}
