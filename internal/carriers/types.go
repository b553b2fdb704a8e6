package carriers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Status is the normalized state of a shipment or of a single event
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusPickup    Status = "pickup"
	StatusException Status = "exception"
	StatusWarning   Status = "warning"
)

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusUnknown, StatusInTransit, StatusDelivered, StatusPickup, StatusException, StatusWarning:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Details is a key/value sidecar attached to events and tracks.
// Keys are unique and later writes replace earlier ones.
type Details struct {
	details map[string]any
}

// AddDetail stores value under key
func (d *Details) AddDetail(key string, value any) {
	if d.details == nil {
		d.details = make(map[string]any)
	}
	d.details[key] = value
}

// Detail returns the value stored under key
func (d *Details) Detail(key string) (any, bool) {
	v, ok := d.details[key]
	return v, ok
}

// DetailOr returns the value stored under key or def when it is missing
func (d *Details) DetailOr(key string, def any) any {
	if v, ok := d.details[key]; ok {
		return v
	}
	return def
}

// AdditionalDetails returns a copy of all details
func (d *Details) AdditionalDetails() map[string]any {
	out := make(map[string]any, len(d.details))
	for k, v := range d.details {
		out[k] = v
	}
	return out
}

// HasAdditionalDetails reports whether any detail was recorded
func (d *Details) HasAdditionalDetails() bool {
	return len(d.details) > 0
}

// Event is one point in a shipment's history
type Event struct {
	Details

	location    string
	date        time.Time
	description string
	status      Status
}

// NewEvent creates an event. Location and description are normalized to valid UTF-8.
func NewEvent(date time.Time, status Status, location, description string) *Event {
	if status == "" {
		status = StatusUnknown
	}
	return &Event{
		location:    ensureUTF8(location),
		date:        date,
		description: ensureUTF8(description),
		status:      status,
	}
}

// EventFromMap builds an event from a field map. Only the date, location,
// description and status keys are read; anything else is ignored.
// Dates may be given as time.Time or as an RFC 3339 string.
func EventFromMap(fields map[string]any) (*Event, error) {
	var (
		date     time.Time
		status   = StatusUnknown
		location string
		desc     string
	)

	for key, value := range fields {
		switch key {
		case "date":
			switch v := value.(type) {
			case time.Time:
				date = v
			case *time.Time:
				if v != nil {
					date = *v
				}
			case string:
				t, err := time.Parse(time.RFC3339, v)
				if err != nil {
					return nil, fmt.Errorf("%w: invalid event date %q", ErrInvalidArgument, v)
				}
				date = t
			case nil:
			default:
				return nil, fmt.Errorf("%w: unsupported event date type %T", ErrInvalidArgument, value)
			}
		case "location":
			location = fieldString(value)
		case "description":
			desc = fieldString(value)
		case "status":
			switch v := value.(type) {
			case Status:
				status = v
			case string:
				status = Status(v)
			default:
				return nil, fmt.Errorf("%w: unsupported event status type %T", ErrInvalidArgument, value)
			}
			if !status.Valid() {
				return nil, fmt.Errorf("%w: unknown event status %q", ErrInvalidArgument, status)
			}
		}
	}

	return NewEvent(date, status, location, desc), nil
}

// fieldString renders a map value as text. A missing value is empty.
func fieldString(value any) string {
	if value == nil {
		return ""
	}
	return fmt.Sprint(value)
}

func (e *Event) Location() string    { return e.location }
func (e *Event) Date() time.Time     { return e.date }
func (e *Event) Description() string { return e.description }
func (e *Event) Status() Status      { return e.status }

// HasDate reports whether the carrier supplied a timestamp for the event
func (e *Event) HasDate() bool {
	return !e.date.IsZero()
}

type eventJSON struct {
	Date        *time.Time     `json:"date,omitempty"`
	Status      Status         `json:"status"`
	Location    string         `json:"location"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
}

func (e *Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{
		Status:      e.status,
		Location:    e.location,
		Description: e.description,
	}
	if e.HasDate() {
		d := e.date
		out.Date = &d
	}
	if e.HasAdditionalDetails() {
		out.Details = e.AdditionalDetails()
	}
	return json.Marshal(out)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var in eventJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	var date time.Time
	if in.Date != nil {
		date = *in.Date
	}
	*e = *NewEvent(date, in.Status, in.Location, in.Description)
	for k, v := range in.Details {
		e.AddDetail(k, v)
	}
	return nil
}

// Track is the full history of one shipment
type Track struct {
	Details

	events       []*Event
	sorted       bool
	recipient    string
	hasRecipient bool
}

// NewTrack creates an empty track
func NewTrack() *Track {
	return &Track{}
}

// AddEvent appends an event and marks the track as unsorted
func (t *Track) AddEvent(e *Event) *Track {
	t.events = append(t.events, e)
	t.sorted = false
	return t
}

// Events returns the events in their current order
func (t *Track) Events() []*Event {
	out := make([]*Event, len(t.events))
	copy(out, t.events)
	return out
}

func (t *Track) HasEvents() bool {
	return len(t.events) > 0
}

// Sorted reports whether SortEvents has run since the last AddEvent
func (t *Track) Sorted() bool {
	return t.sorted
}

// SortEvents orders events newest first. Events with equal dates keep their
// insertion order and undated events go last.
func (t *Track) SortEvents() *Track {
	sort.SliceStable(t.events, func(i, j int) bool {
		a, b := t.events[i], t.events[j]
		if !a.HasDate() || !b.HasDate() {
			return a.HasDate() && !b.HasDate()
		}
		return a.date.After(b.date)
	})
	t.sorted = true
	return t
}

// LatestEvent returns the most recent event. Once sorted that is the first
// event; before sorting it is the last one added.
func (t *Track) LatestEvent() (*Event, bool) {
	if len(t.events) == 0 {
		return nil, false
	}
	if t.sorted {
		return t.events[0], true
	}
	return t.events[len(t.events)-1], true
}

// CurrentStatus is the status of the latest event
func (t *Track) CurrentStatus() Status {
	if e, ok := t.LatestEvent(); ok {
		return e.status
	}
	return StatusUnknown
}

// Delivered reports whether any event says the parcel was delivered
func (t *Track) Delivered() bool {
	for _, e := range t.events {
		if e.status == StatusDelivered {
			return true
		}
	}
	return false
}

// SetRecipient records who accepted the parcel
func (t *Track) SetRecipient(name string) *Track {
	t.recipient = ensureUTF8(name)
	t.hasRecipient = true
	return t
}

func (t *Track) Recipient() (string, bool) {
	return t.recipient, t.hasRecipient
}

type trackJSON struct {
	Status    Status         `json:"status"`
	Delivered bool           `json:"delivered"`
	Recipient *string        `json:"recipient,omitempty"`
	Events    []*Event       `json:"events"`
	Details   map[string]any `json:"details,omitempty"`
	Sorted    bool           `json:"sorted"`
}

func (t *Track) MarshalJSON() ([]byte, error) {
	out := trackJSON{
		Status:    t.CurrentStatus(),
		Delivered: t.Delivered(),
		Events:    t.events,
		Sorted:    t.sorted,
	}
	if out.Events == nil {
		out.Events = []*Event{}
	}
	if t.hasRecipient {
		r := t.recipient
		out.Recipient = &r
	}
	if t.HasAdditionalDetails() {
		out.Details = t.AdditionalDetails()
	}
	return json.Marshal(out)
}

func (t *Track) UnmarshalJSON(data []byte) error {
	var in trackJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*t = Track{events: in.Events, sorted: in.Sorted}
	if in.Recipient != nil {
		t.SetRecipient(*in.Recipient)
	}
	for k, v := range in.Details {
		t.AddDetail(k, v)
	}
	return nil
}

// Tracker fetches and normalizes tracking data for one carrier
type Tracker interface {
	// Name returns the registry name of the carrier
	Name() string

	// TrackingURL builds the human-facing tracking page URL. It performs no I/O.
	TrackingURL(number, language string, params map[string]any) string

	// Track fetches, parses and sorts the shipment history
	Track(ctx context.Context, number, language string, params map[string]any, opts ...TrackOption) (*Track, error)

	// UseProvider selects the fetch provider by name
	UseProvider(name string)

	// Provider returns the selected fetch provider name
	Provider() string
}
