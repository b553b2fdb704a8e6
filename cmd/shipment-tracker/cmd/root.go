// Copyright 2024 Package Tracking System
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

const (
	// Version information
	Version   = "1.0.0"
	BuildDate = "development"
)

var (
	configFile string
	serverURL  string
	apiKey     string
	format     string
	quiet      bool
	noColor    bool
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "shipment-tracker",
	Short: "Track shipments across parcel carriers",
	Long: `Shipment Tracker fetches the public tracking pages and APIs of parcel
carriers and normalizes them into one event timeline per shipment.

Supported carriers: DHL, DHLExpress, UPS, USPS, GLS, Fedex, PostAT, PostCH,
PostNord and Dachser.

CONFIGURATION:
    Settings are read from tracker.yaml (., ./config or $HOME), a .env file
    and SHIPMENT_TRACKER_* environment variables, e.g.

        SHIPMENT_TRACKER_DATABASE_PATH      - cache database (default: ./tracker.db)
        SHIPMENT_TRACKER_CACHE_TTL          - cache lifetime (default: 5m)
        SHIPMENT_TRACKER_FETCH_RETRIES      - retries of failed fetches (default: 2)
        SHIPMENT_TRACKER_CARRIERS_POSTNORD_API_KEY - PostNord API key

EXAMPLES:
    shipment-tracker track DHL 00340434161094015902
    shipment-tracker track GLS 1234567890 --lang en --refresh
    shipment-tracker url UPS 1Z12345E0205271688
    shipment-tracker serve
    shipment-tracker --server http://localhost:8080 track PostCH 99.60.123456.12345678`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is tracker.yaml)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "use a remote API server instead of tracking locally")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key sent to the remote server")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (minimal output)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable color output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log fetches and cache activity to stderr")
}
