package carriers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"shipment-tracker/internal/fetch"
)

const (
	fedexTrackingURL = "https://www.fedex.com/apps/fedextrack/"
	fedexEndpoint    = "https://www.fedex.com/trackingCal/track"
)

var fedexStatuses = StatusResolver{
	Mode: MatchExact,
	Rules: []StatusRule{
		{StatusInTransit, []string{"PU", "OC", "AR", "DP", "OD"}},
		{StatusDelivered, []string{"DL"}},
	},
}

type fedexRequest struct {
	TrackPackagesRequest struct {
		TrackingInfoList []fedexTrackingInfo `json:"trackingInfoList"`
	} `json:"TrackPackagesRequest"`
}

type fedexTrackingInfo struct {
	TrackNumberInfo struct {
		TrackingNumber string `json:"trackingNumber"`
	} `json:"trackNumberInfo"`
}

type fedexResponse struct {
	TrackPackagesResponse struct {
		PackageList []struct {
			ReceivedByNm  string `json:"receivedByNm"`
			TotalKgsWgt   string `json:"totalKgsWgt"`
			TotalLbsWgt   string `json:"totalLbsWgt"`
			ScanEventList []struct {
				ScanLocation string `json:"scanLocation"`
				Status       string `json:"status"`
				StatusCD     string `json:"statusCD"`
				Date         string `json:"date"`
				Time         string `json:"time"`
				GMTOffset    string `json:"gmtOffset"`
			} `json:"scanEventList"`
		} `json:"packageList"`
	} `json:"TrackPackagesResponse"`
}

// NewFedex creates the tracker for FedEx. The tracking data is fetched with a
// form POST to the JSON endpoint behind the public tracking page.
func NewFedex(deps *Deps) *Adapter {
	return NewAdapter("Fedex", Hooks{
		TrackingURL: func(c *Call) string {
			return buildURL(fedexTrackingURL, url.Values{"tracknumbers": {c.Number}}, c.TrackingParams)
		},
		EndpointURL: func(c *Call) string {
			return buildURL(fedexEndpoint, nil, c.EndpointParams)
		},
		Fetch: fetchFedex,
		Parse: parseFedex,
	}, deps)
}

func fetchFedex(ctx context.Context, c *Call, endpoint string) (string, error) {
	var payload fedexRequest
	var info fedexTrackingInfo
	info.TrackNumberInfo.TrackingNumber = c.Number
	payload.TrackPackagesRequest.TrackingInfoList = []fedexTrackingInfo{info}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fetchError(c, err)
	}

	form := url.Values{"data": {string(data)}, "action": {"trackpackages"}}
	resp, err := c.Do(ctx, &fetch.Request{
		Method: http.MethodPost,
		URL:    endpoint,
		Header: http.Header{
			"Accept":       {"application/json"},
			"Content-Type": {"application/x-www-form-urlencoded"},
		},
		Body: form.Encode(),
	})
	if err != nil {
		return "", err
	}
	return resp.Body, nil
}

func parseFedex(_ context.Context, c *Call, body string) (*Track, error) {
	var resp fedexResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, decodeError(c, err)
	}
	packages := resp.TrackPackagesResponse.PackageList
	if len(packages) == 0 {
		return nil, parseError(c, "unable to parse FedEx tracking data")
	}
	pkg := packages[0]

	track := NewTrack()
	for _, scan := range pkg.ScanEventList {
		raw := scan.Date + "T" + scan.Time + scan.GMTOffset
		date, ok := parseDate(raw, time.UTC, time.RFC3339, "2006-01-02T15:04:05")
		if !ok {
			return nil, parseError(c, "invalid FedEx scan date %q", raw)
		}

		status := fedexStatuses.Resolve(scan.StatusCD)
		track.AddEvent(NewEvent(date, status, scan.ScanLocation, scan.Status))

		if status == StatusDelivered && pkg.ReceivedByNm != "" {
			track.SetRecipient(pkg.ReceivedByNm)
		}
	}

	if pkg.TotalKgsWgt != "" {
		track.AddDetail("totalKgsWgt", pkg.TotalKgsWgt)
	}
	if pkg.TotalLbsWgt != "" {
		track.AddDetail("totalLbsWgt", pkg.TotalLbsWgt)
	}

	return track, nil
}
