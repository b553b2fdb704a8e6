package carriers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusResolver_Resolve(t *testing.T) {
	rules := []StatusRule{
		{StatusInTransit, []string{"soon ready for pick up"}},
		{StatusPickup, []string{"ready for pick up"}},
		{StatusDelivered, []string{"Delivered"}},
	}

	tests := []struct {
		name string
		mode MatchMode
		text string
		want Status
	}{
		{"contains", MatchContains, "Item Delivered to mailbox", StatusDelivered},
		{"contains is case sensitive", MatchContains, "item delivered", StatusUnknown},
		{"fold ignores case", MatchContainsFold, "Item is READY FOR PICK UP", StatusPickup},
		{"first rule wins", MatchContainsFold, "Item soon ready for pick up", StatusInTransit},
		{"prefix", MatchPrefix, "Delivered - Signed for by: SDA", StatusDelivered},
		{"prefix requires start", MatchPrefix, "Not Delivered", StatusUnknown},
		{"exact trims", MatchExact, " Delivered ", StatusDelivered},
		{"exact rejects substrings", MatchExact, "Delivered late", StatusUnknown},
		{"no match", MatchContains, "", StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := StatusResolver{Mode: tt.mode, Rules: rules}
			assert.Equal(t, tt.want, r.Resolve(tt.text))
		})
	}
}

func TestCarrierStatusTables(t *testing.T) {
	tests := []struct {
		name     string
		resolver StatusResolver
		text     string
		want     Status
	}{
		{"dhl warning", dhlStatuses, "Die Sendung wurde fehlgeleitet und konnte nicht zugestellt werden. Die Sendung wird umadressiert und an den Empfänger weitergeleitet.", StatusWarning},
		{"dhl exception", dhlStatuses, "Die Adresse ist falsch.", StatusException},
		{"ups warning", upsStatuses, "A delivery change for this package is in progress.", StatusWarning},
		{"gls pickup", glsStatuses, "3.124", StatusPickup},
		{"gls unknown code", glsStatuses, "99.9", StatusUnknown},
		{"fedex delivered", fedexStatuses, "DL", StatusDelivered},
		{"postnord other", postNordStatuses, "OTHER", StatusInTransit},
		{"dhl express german", dhlExpressStatuses, "Sendung zugestellt - übernommen von: SDA", StatusDelivered},
		{"dachser terminal", dachserStatuses, "Ausgang Verladeterminal", StatusInTransit},
		{"post ch customs", postCHStatuses, "Handed to customs", StatusInTransit},
		{"usps notice", uspsStatuses, "Notice Left (No Authorized Recipient Available)", StatusInTransit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.resolver.Resolve(tt.text))
		})
	}
}
