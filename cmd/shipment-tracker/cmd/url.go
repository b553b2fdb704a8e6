package cmd

import (
	"github.com/spf13/cobra"
)

var (
	urlLanguage string
	urlParams   []string
)

var urlCmd = &cobra.Command{
	Use:   "url <carrier> <tracking-number>",
	Short: "Print the public tracking page of a shipment",
	Long:  `Print the carrier's tracking page URL for a shipment without fetching anything.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runURL,
}

func init() {
	urlCmd.Flags().StringVarP(&urlLanguage, "lang", "l", "", "two letter language of the tracking page")
	urlCmd.Flags().StringArrayVar(&urlParams, "param", nil, "key=value added to the URL (repeatable)")
	rootCmd.AddCommand(urlCmd)
}

func runURL(cmd *cobra.Command, args []string) error {
	params, err := parseParams(urlParams, nil, nil)
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

	trackingURL, err := b.TrackingURL(cmd.Context(), args[0], args[1], urlLanguage, params)
	if err != nil {
		formatter.PrintError(err)
		return err
	}
	return formatter.PrintURL(args[0], args[1], trackingURL)
}
