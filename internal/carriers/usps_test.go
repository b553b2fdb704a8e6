package carriers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipment-tracker/internal/fetch"
)

func TestUSPS_Defaults(t *testing.T) {
	tracker := NewUSPS(nil)

	assert.Equal(t, fetch.AltHTTP, tracker.Provider())
	assert.Equal(t, "https://tools.usps.com/go/TrackConfirmAction?qtc_tLabels1=9400111699000367046792",
		tracker.TrackingURL("9400111699000367046792", "", nil))
}

func TestUSPS_TrackDelivered(t *testing.T) {
	track := trackFixture(t, "USPS", "9400111699000367046792", newFixtureProvider(t, "usps/delivered.html"))

	events := track.Events()
	require.Len(t, events, 4, "rows without the detail-wrapper class are skipped")
	assert.Equal(t, StatusDelivered, track.CurrentStatus())

	zone := carrierZone("America/New_York")
	assert.Equal(t, time.Date(2015, 11, 12, 11, 41, 0, 0, zone), events[0].Date())
	assert.Equal(t, "BROOKLYN, NY 11201", events[0].Location())
	assert.Equal(t, "Delivered, In/At Mailbox", events[0].Description())

	assert.Equal(t, "Out for Delivery", events[1].Description())
	assert.Equal(t, StatusInTransit, events[1].Status())
	assert.Equal(t, "BROOKLYN, NY 11201", events[1].Location())

	assert.Equal(t, "Sorting Complete", events[2].Description())
	assert.Equal(t, events[1].Date(), events[2].Date(), "rows without a date repeat the previous date")

	assert.Equal(t, time.Date(2015, 11, 9, 22, 50, 0, 0, zone), events[3].Date())
	assert.Equal(t, "SAN FRANCISCO, CA 94107", events[3].Location())
}
