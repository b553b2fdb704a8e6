package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"shipment-tracker/internal/carriers"
	"shipment-tracker/internal/tracking"
)

// OutputFormatter handles different output formats
type OutputFormatter struct {
	format   string
	quiet    bool
	useColor bool
	out      io.Writer
	errOut   io.Writer
	styles   styles
}

type styles struct {
	header    lipgloss.Style
	cell      lipgloss.Style
	title     lipgloss.Style
	muted     lipgloss.Style
	success   lipgloss.Style
	failure   lipgloss.Style
	statusFor map[carriers.Status]lipgloss.Style
}

// NewOutputFormatter creates a formatter writing to stdout and stderr
func NewOutputFormatter(format string, quiet, noColor bool) *OutputFormatter {
	return NewOutputFormatterWithWriters(format, quiet, noColor, os.Stdout, os.Stderr)
}

// NewOutputFormatterWithWriters creates a formatter writing to out and errOut.
// Colors are used only when out is a color capable terminal.
func NewOutputFormatterWithWriters(format string, quiet, noColor bool, out, errOut io.Writer) *OutputFormatter {
	useColor := !noColor && IsTerminal(out)

	renderer := lipgloss.NewRenderer(out)
	if !useColor {
		renderer.SetColorProfile(termenv.Ascii)
	} else if renderer.ColorProfile() == termenv.Ascii {
		useColor = false
	}

	return &OutputFormatter{
		format:   format,
		quiet:    quiet,
		useColor: useColor,
		out:      out,
		errOut:   errOut,
		styles:   newStyles(renderer),
	}
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1),
		cell:    r.NewStyle().Padding(0, 1),
		title:   r.NewStyle().Bold(true),
		muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		success: r.NewStyle().Foreground(lipgloss.Color("10")),
		failure: r.NewStyle().Foreground(lipgloss.Color("9")),
		statusFor: map[carriers.Status]lipgloss.Style{
			carriers.StatusDelivered: r.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
			carriers.StatusInTransit: r.NewStyle().Foreground(lipgloss.Color("11")),
			carriers.StatusPickup:    r.NewStyle().Foreground(lipgloss.Color("14")),
			carriers.StatusException: r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
			carriers.StatusWarning:   r.NewStyle().Foreground(lipgloss.Color("13")),
			carriers.StatusUnknown:   r.NewStyle().Foreground(lipgloss.Color("8")),
		},
	}
}

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// resultView is the JSON shape of a tracking result
type resultView struct {
	Carrier        string          `json:"carrier"`
	TrackingNumber string          `json:"tracking_number"`
	TrackingURL    string          `json:"tracking_url,omitempty"`
	Status         carriers.Status `json:"status,omitempty"`
	Delivered      bool            `json:"delivered"`
	Cached         bool            `json:"cached"`
	CachedAt       *time.Time      `json:"cached_at,omitempty"`
	Error          string          `json:"error,omitempty"`
	Kind           string          `json:"kind,omitempty"`
	Track          *carriers.Track `json:"track,omitempty"`
}

func newResultView(r tracking.Result) resultView {
	view := resultView{
		Carrier:        r.Carrier,
		TrackingNumber: r.TrackingNumber,
		TrackingURL:    r.TrackingURL,
		Cached:         r.Cached,
		CachedAt:       r.CachedAt,
		Error:          r.Error,
		Kind:           r.Kind,
		Track:          r.Track,
	}
	if r.Err != nil && view.Error == "" {
		view.Error = r.Err.Error()
		view.Kind = tracking.Outcome(r.Err)
	}
	if r.Track != nil {
		view.Status = r.Track.CurrentStatus()
		view.Delivered = r.Track.Delivered()
	}
	return view
}

// Interactive reports whether progress output is wanted
func (f *OutputFormatter) Interactive() bool {
	return !f.quiet && f.format == "table"
}

// PrintResults prints tracking results
func (f *OutputFormatter) PrintResults(results []tracking.Result) error {
	if f.quiet {
		for _, r := range results {
			view := newResultView(r)
			status := string(view.Status)
			if view.Error != "" {
				status = "error"
			}
			fmt.Fprintf(f.out, "%s\t%s\t%s\n", view.Carrier, view.TrackingNumber, status)
		}
		return nil
	}

	switch f.format {
	case "json":
		views := make([]resultView, len(results))
		for i, r := range results {
			views[i] = newResultView(r)
		}
		return f.encodeJSON(views)
	case "table":
		for i, r := range results {
			if i > 0 {
				fmt.Fprintln(f.out)
			}
			f.printResultTable(newResultView(r))
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintURL prints the tracking page of a shipment
func (f *OutputFormatter) PrintURL(carrier, trackingNumber, trackingURL string) error {
	if f.quiet || f.format == "table" {
		fmt.Fprintln(f.out, trackingURL)
		return nil
	}
	if f.format == "json" {
		return f.encodeJSON(URLResponse{Carrier: carrier, TrackingNumber: trackingNumber, TrackingURL: trackingURL})
	}
	return fmt.Errorf("unsupported format: %s", f.format)
}

// PrintCarriers prints the supported carriers and fetch providers
func (f *OutputFormatter) PrintCarriers(names, providers []string) error {
	if f.quiet {
		for _, name := range names {
			fmt.Fprintln(f.out, name)
		}
		return nil
	}

	switch f.format {
	case "json":
		return f.encodeJSON(CarriersResponse{Carriers: names, Providers: providers})
	case "table":
		fmt.Fprintln(f.out, f.styles.title.Render("Carriers"))
		for _, name := range names {
			fmt.Fprintf(f.out, "  %s\n", name)
		}
		if len(providers) > 0 {
			fmt.Fprintln(f.out, f.styles.title.Render("Providers"))
			for _, name := range providers {
				fmt.Fprintf(f.out, "  %s\n", name)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintSuccess prints a success message
func (f *OutputFormatter) PrintSuccess(message string) {
	if !f.quiet {
		fmt.Fprintln(f.out, f.styles.success.Render("✓ "+message))
	}
}

// PrintError prints an error message
func (f *OutputFormatter) PrintError(err error) {
	fmt.Fprintln(f.errOut, f.styles.failure.Render(fmt.Sprintf("✗ Error: %v", err)))
}

// PrintInfo prints an informational message
func (f *OutputFormatter) PrintInfo(message string) {
	if !f.quiet {
		fmt.Fprintln(f.errOut, f.styles.muted.Render("ℹ "+message))
	}
}

func (f *OutputFormatter) encodeJSON(v any) error {
	enc := json.NewEncoder(f.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func (f *OutputFormatter) printResultTable(view resultView) {
	fmt.Fprintf(f.out, "%s %s\n", f.styles.title.Render(view.Carrier), view.TrackingNumber)
	if view.TrackingURL != "" {
		fmt.Fprintln(f.out, f.styles.muted.Render(view.TrackingURL))
	}

	if view.Error != "" {
		fmt.Fprintln(f.out, f.styles.failure.Render("✗ "+view.Error))
		return
	}

	status := string(view.Status)
	if style, ok := f.styles.statusFor[view.Status]; ok {
		status = style.Render(status)
	}
	line := "Status: " + status
	if view.Cached && view.CachedAt != nil {
		line += f.styles.muted.Render(fmt.Sprintf(" (cached %s)", view.CachedAt.Local().Format("2006-01-02 15:04")))
	}
	fmt.Fprintln(f.out, line)

	if view.Track == nil || !view.Track.HasEvents() {
		fmt.Fprintln(f.out, "No tracking events found.")
		return
	}
	if recipient, ok := view.Track.Recipient(); ok {
		fmt.Fprintf(f.out, "Recipient: %s\n", recipient)
	}
	fmt.Fprintln(f.out, f.eventsTable(view.Track.Events()))
}

// eventsTable renders events with the bubbles table in a non interactive view
func (f *OutputFormatter) eventsTable(events []*carriers.Event) string {
	rows := make([]table.Row, len(events))
	locationWidth, descriptionWidth := len("LOCATION"), len("DESCRIPTION")
	for i, e := range events {
		date := "-"
		if e.HasDate() {
			date = e.Date().Local().Format("2006-01-02 15:04")
		}
		rows[i] = table.Row{date, string(e.Status()), e.Location(), e.Description()}
		locationWidth = max(locationWidth, len([]rune(e.Location())))
		descriptionWidth = max(descriptionWidth, len([]rune(e.Description())))
	}

	columns := []table.Column{
		{Title: "DATE", Width: 16},
		{Title: "STATUS", Width: 10},
		{Title: "LOCATION", Width: min(locationWidth, 28)},
		{Title: "DESCRIPTION", Width: min(descriptionWidth, 60)},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithHeight(len(rows)+1),
		table.WithFocused(false),
	)
	t.SetStyles(table.Styles{
		Header:   f.styles.header,
		Cell:     f.styles.cell,
		Selected: lipgloss.NewStyle(),
	})

	return strings.TrimRight(t.View(), "\n")
}
