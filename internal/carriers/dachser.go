package carriers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"shipment-tracker/internal/fetch"
)

const dachserTrackingURL = "http://partner.dachser.com/shp2/?wicket:interface=:5:pnlHead:frmHead:btnSearch::IActivePageBehaviorListener:0:-1&wicket:ignoreIfNotActive=true&random=0.35369399622175934&tfiSearch=%s"

var (
	dachserStatusTable = regexp.MustCompile(`</th> *</tr>(.*?)</tab`)
	dachserStatusRow   = regexp.MustCompile(`<td>(.*?)</td><td>(.*?)</td><td>(.*?)</td><td>(.*?)</td><td>(.*?)</td>`)
	dachserTags        = regexp.MustCompile(`<[^>]*>`)
	dachserTime        = regexp.MustCompile(`(\d{2}:\d{2})`)
	dachserWeight      = regexp.MustCompile(`<td><span>(Weight|Gewicht)</span></td>.*?<td><span>(\d+) kg`)
	dachserReferences  = regexp.MustCompile(`<td><span>NVE/SSCC</span></td><td><span>(\d*)</span></td><td><span>Consignment number</span></td><td><span>(\d*)</span></td>`)
)

var dachserStatuses = StatusResolver{
	Mode: MatchExact,
	Rules: []StatusRule{
		{StatusInTransit, []string{"Ausgang Verladeterminal"}},
		{StatusDelivered, []string{"Delivered"}},
	},
}

// NewDachser creates the tracker for Dachser logistics. Dachser answers a
// POST with an XML envelope that wraps the HTML of the latest status only,
// so tracks hold a single event.
func NewDachser(deps *Deps) *Adapter {
	return NewAdapter("Dachser", Hooks{
		TrackingURL: func(c *Call) string {
			return buildURL(fmt.Sprintf(dachserTrackingURL, url.QueryEscape(c.Number)), nil, c.TrackingParams)
		},
		Fetch: func(ctx context.Context, c *Call, endpoint string) (string, error) {
			resp, err := c.Do(ctx, &fetch.Request{Method: http.MethodPost, URL: endpoint})
			if err != nil {
				return "", err
			}
			return resp.Body, nil
		},
		Parse: parseDachser,
	}, deps)
}

func parseDachser(_ context.Context, c *Call, body string) (*Track, error) {
	doc, err := xmlquery.Parse(strings.NewReader(body))
	if err != nil {
		return nil, decodeError(c, err)
	}

	var content strings.Builder
	for _, component := range xmlquery.Find(doc, "//component[@id='ide']") {
		content.WriteString(component.InnerText())
	}
	htmlContent := strings.NewReplacer("\t", "", "\r", "", "\n", "").Replace(content.String())

	table := dachserStatusTable.FindStringSubmatch(htmlContent)
	if table == nil {
		return nil, parseError(c, "could not parse Dachser status")
	}
	row := dachserStatusRow.FindStringSubmatch(table[1])
	if row == nil {
		return nil, parseError(c, "could not parse Dachser status row")
	}
	for i := range row {
		row[i] = dachserTags.ReplaceAllString(row[i], "")
	}

	clock := "00:00"
	if m := dachserTime.FindStringSubmatch(row[2]); m != nil {
		clock = m[1]
	}
	day := strings.TrimSpace(strings.ReplaceAll(row[1], "&nbsp;", ""))
	date, ok := parseDate(day+" "+clock, carrierZone("Europe/Berlin"), "01/02/2006 15:04", "02.01.2006 15:04")
	if !ok {
		return nil, parseError(c, "invalid Dachser status date %q", day)
	}

	status := dachserStatuses.Resolve(strings.TrimPrefix(row[3], "&nbsp;"))
	via := strings.TrimSpace(strings.ReplaceAll(row[4], "&nbsp;", ""))
	description := strings.TrimSpace(strings.ReplaceAll(row[3], "&nbsp;", ""))

	track := NewTrack()
	track.AddEvent(NewEvent(date, status, via, description))

	if m := dachserWeight.FindStringSubmatch(htmlContent); m != nil {
		if weight, err := strconv.Atoi(m[2]); err == nil {
			track.AddDetail("weight", weight)
		}
	}
	if m := dachserReferences.FindStringSubmatch(htmlContent); m != nil {
		if m[1] != "" {
			track.AddDetail("nve", m[1])
		}
		if m[2] != "" {
			track.AddDetail("consignment_number", m[2])
		}
	}

	return track, nil
}
