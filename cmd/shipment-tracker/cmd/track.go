package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"shipment-tracker/internal/cli"
	"shipment-tracker/internal/tracking"
)

var (
	trackLanguage       string
	trackProvider       string
	trackRefresh        bool
	trackParams         []string
	trackTrackingParams []string
	trackEndpointParams []string
)

var trackCmd = &cobra.Command{
	Use:   "track <carrier> <tracking-number>...",
	Short: "Track one or more shipments of a carrier",
	Long: `Fetch the current tracking events of one or more shipments.

Results are served from the cache while they are fresh; use --refresh to
force a new fetch. Params are passed to the carrier as query parameters of
both the tracking page and the data endpoint, or of only one of them with
--tracking-param and --endpoint-param.`,
	Example: `  shipment-tracker track DHL 00340434161094015902
  shipment-tracker track UPS 1Z12345E0205271688 1Z12345E6605272234 --lang de
  shipment-tracker track GLS 1234567890 --param match=postalcode
  shipment-tracker track DHL 00340434161094015902 --provider headless`,
	Args: cobra.MinimumNArgs(2),
	RunE: runTrack,
}

func init() {
	trackCmd.Flags().StringVarP(&trackLanguage, "lang", "l", "", "two letter language of the tracking page")
	trackCmd.Flags().StringVarP(&trackProvider, "provider", "p", "", "fetch provider to use instead of the carrier default")
	trackCmd.Flags().BoolVarP(&trackRefresh, "refresh", "r", false, "bypass the cache")
	trackCmd.Flags().StringArrayVar(&trackParams, "param", nil, "key=value passed to the carrier (repeatable)")
	trackCmd.Flags().StringArrayVar(&trackTrackingParams, "tracking-param", nil, "key=value passed only to the tracking page (repeatable)")
	trackCmd.Flags().StringArrayVar(&trackEndpointParams, "endpoint-param", nil, "key=value passed only to the data endpoint (repeatable)")
	_ = trackCmd.RegisterFlagCompletionFunc("provider", completeProvider)
	rootCmd.AddCommand(trackCmd)
}

func runTrack(cmd *cobra.Command, args []string) error {
	params, err := parseParams(trackParams, trackTrackingParams, trackEndpointParams)
	if err != nil {
		return err
	}

	formatter, b, err := initializeBackend(cmd)
	if err != nil {
		if formatter != nil {
			formatter.PrintError(err)
		}
		return err
	}
	defer b.Close()

	carrier := args[0]
	reqs := make([]tracking.Request, 0, len(args)-1)
	for _, number := range args[1:] {
		reqs = append(reqs, tracking.Request{
			Carrier:        carrier,
			TrackingNumber: number,
			Language:       trackLanguage,
			Provider:       trackProvider,
			Params:         params,
			Refresh:        trackRefresh,
		})
	}

	var spinner *cli.ProgressSpinner
	if formatter.Interactive() {
		spinner = cli.NewProgressSpinner(fmt.Sprintf("Tracking %d %s shipment(s)", len(reqs), carrier), cmd.ErrOrStderr(), true)
		spinner.Start()
	}
	results, err := b.Track(cmd.Context(), reqs)
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	if err := formatter.PrintResults(results); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d shipments failed", failed, len(results))
	}
	return nil
}
