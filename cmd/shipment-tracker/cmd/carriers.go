package cmd

import (
	"github.com/spf13/cobra"
)

var carriersCmd = &cobra.Command{
	Use:     "carriers",
	Aliases: []string{"list"},
	Short:   "List supported carriers and fetch providers",
	Args:    cobra.NoArgs,
	RunE:    runCarriers,
}

func init() {
	rootCmd.AddCommand(carriersCmd)
}

func runCarriers(cmd *cobra.Command, args []string) error {
	formatter, b, err := initializeBackend(cmd)
	if err != nil {
		if formatter != nil {
			formatter.PrintError(err)
		}
		return err
	}
	defer b.Close()

	names, providers, err := b.Carriers(cmd.Context())
	if err != nil {
		formatter.PrintError(err)
		return err
	}
	return formatter.PrintCarriers(names, providers)
}
