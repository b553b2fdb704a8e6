package carriers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostAT_TrackingURL(t *testing.T) {
	tracker := NewPostAT(nil)

	assert.Equal(t, "https://www.post.at/sendungsverfolgung.php/details?pnum1=1234567890123456", tracker.TrackingURL("1234567890123456", "", nil))
	assert.Equal(t, "https://www.post.at/en/track_trace.php/details?pnum1=1234567890123456", tracker.TrackingURL("1234567890123456", "en", nil))
}

func TestPostAT_TrackDelivered(t *testing.T) {
	track := trackFixture(t, "PostAT", "1234567890123456", newFixtureProvider(t, "postat/delivered.html"))

	events := track.Events()
	require.Len(t, events, 4)
	assert.Equal(t, StatusDelivered, track.CurrentStatus())

	assert.Equal(t, time.Date(2016, 7, 19, 10, 37, 0, 0, carrierZone("Europe/Vienna")), events[0].Date())
	assert.Equal(t, "Wien", events[0].Location())
	assert.Equal(t, "Sendung zugestellt", events[0].Description())
	assert.Equal(t, "Allhaming", events[2].Location())
	assert.Equal(t, "", events[3].Location(), "entries without a location")
	assert.Equal(t, StatusInTransit, events[3].Status())
}

func TestPostAT_SoonReadyIsNotPickup(t *testing.T) {
	track := trackFixture(t, "PostAT", "1234567890123456", newFixtureProvider(t, "postat/pickup.html"))

	events := track.Events()
	require.Len(t, events, 2)
	assert.Equal(t, StatusPickup, events[0].Status())
	assert.Equal(t, "Post office 1010 Wien", events[0].Location())
	assert.Equal(t, StatusInTransit, events[1].Status())
}

func TestPostAT_UnexpectedEntry(t *testing.T) {
	body := `<div class="sendungsstatus-history"><ul><li>Datum: 19.07.2016 10:37 Zugestellt</li><li>kaputt</li></ul></div>`
	tracker, err := NewRegistry(nil).GetWithProvider("PostAT", &fixtureProvider{fallback: body})
	require.NoError(t, err)

	_, err = tracker.Track(context.Background(), "1234567890123456", "", nil)
	assert.ErrorIs(t, err, ErrParse)
}
