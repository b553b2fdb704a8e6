package carriers

import (
	"context"
	"net/url"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

const dhlEndpoint = "http://nolp.dhl.de/nextt-online-public/set_identcodes.do"

var dhlStatuses = StatusResolver{
	Mode: MatchContains,
	Rules: []StatusRule{
		{StatusDelivered, []string{
			"aus der PACKSTATION abgeholt",
			"erfolgreich zugestellt",
			"hat die Sendung in der Filiale abgeholt",
			"des Nachnahme-Betrags an den Zahlungsempf",
			"Sendung wurde zugestellt an",
			"Die Sendung wurde ausgeliefert",
			"shipment has been successfully delivered",
			"recipient has picked up the shipment from the retail outlet",
			"recipient has picked up the shipment from the PACKSTATION",
			"item has been sent",
		}},
		{StatusInTransit, []string{
			"in das Zustellfahrzeug geladen",
			"im Start-Paketzentrum bearbeitet",
			"im Ziel-Paketzentrum bearbeitet",
			"im Paketzentrum bearbeitet",
			"Auftragsdaten zu dieser Sendung wurden vom Absender elektronisch an DHL",
			"auf dem Weg zur PACKSTATION",
			"wird in eine PACKSTATION weitergeleitet",
			"Die Sendung wurde abgeholt",
			"im Export-Paketzentrum bearbeitet",
			"Sendung wird ins Zielland transportiert und dort an die Zustellorganisation",
			"vom Absender in der Filiale eingeliefert",
			"Sendung konnte nicht in die PACKSTATION eingestellt werden und wurde in eine Filiale",
			"Sendung konnte nicht zugestellt werden und wird jetzt zur Abholung in die Filiale/Agentur gebracht",
			"shipment has been picked up",
			"instruction data for this shipment have been provided",
			"shipment has been processed",
			"shipment has been posted by the sender",
			"hipment has been loaded onto the delivery vehicle",
			"A 2nd attempt at delivery is being made",
			"shipment is on its way to the PACKSTATION",
			"forwarded to a PACKSTATION",
			"shipment could not be delivered to the PACKSTATION and has been forwarded to a retail outlet",
			"shipment could not be delivered, and the recipient has been notified",
			"Es erfolgt ein 2. Zustellversuch",
		}},
		{StatusPickup, []string{
			"Die Sendung liegt in der PACKSTATION",
			"Uhrzeit der Abholung kann der Benachrichtigungskarte entnommen werden",
			"earliest time when it can be picked up can be found on the notification card",
			"shipment is ready for pick-up at the PACKSTATION",
		}},
		{StatusWarning, []string{
			"attempting to obtain a new delivery address",
			"eine neue Zustelladresse für den Empf",
			"Sendung wurde fehlgeleitet und konnte nicht zugestellt werden. Die Sendung wird umadressiert und an den",
			"shipment was misrouted and could not be delivered. The shipment will be readdressed and forwarded to the recipient",
		}},
		{StatusException, []string{
			"cksendung eingeleitet",
			"Adressfehlers konnte die Sendung nicht zugestellt",
			"nger ist unbekannt",
			"The address is incomplete",
			"ist falsch",
			"is incorrect",
		}},
	},
}

// NewDHL creates the tracker for DHL Paket (Germany)
func NewDHL(deps *Deps) *Adapter {
	return NewAdapter("DHL", Hooks{
		DefaultLanguage: "de",
		TrackingURL: func(c *Call) string {
			return buildURL(dhlEndpoint, url.Values{"lang": {c.Language}, "idc": {c.Number}}, c.TrackingParams)
		},
		Parse: parseDHL,
	}, deps)
}

func parseDHL(_ context.Context, c *Call, body string) (*Track, error) {
	doc, err := parseHTML(c, body)
	if err != nil {
		return nil, err
	}

	history := htmlquery.FindOne(doc, "//div[@id='pieceEvents0']")
	if history == nil {
		return nil, parseError(c, "unable to parse DHL tracking data")
	}

	zone := carrierZone("Europe/Berlin")
	track := NewTrack()
	for _, row := range htmlquery.Find(history, ".//table/tbody/tr") {
		cols := cells(row)
		if len(cols) < 3 {
			return nil, parseError(c, "unexpected DHL event row with %d cells", len(cols))
		}

		// "Sa, 18.07.16 12:21 Uhr" or "Sat, 18.07.16 12:21 h"
		date, ok := parseDate(stripLetters(cols[0]), zone, "02.01.06 15:04")
		if !ok {
			return nil, parseError(c, "invalid DHL event date %q", cols[0])
		}

		status := dhlStatuses.Resolve(cols[2])
		track.AddEvent(NewEvent(date, status, cols[1], cols[2]))

		if status == StatusDelivered {
			if recipient, ok := dhlRecipient(doc); ok {
				track.SetRecipient(recipient)
			}
		}
	}

	return track, nil
}

func dhlRecipient(doc *html.Node) (string, bool) {
	nodes := htmlquery.Find(doc, "//div[contains(@class,'parcel-details')]/dl/dd")
	if len(nodes) < 2 {
		return "", false
	}
	return nodeText(nodes[1]), true
}
