package cmd

import (
	"github.com/spf13/cobra"

	"shipment-tracker/internal/carriers"
	"shipment-tracker/internal/fetch"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate completion script",
	Long: `To load completions:

Bash:
  $ source <(shipment-tracker completion bash)

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it.  You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc
  $ shipment-tracker completion zsh > "${fpath[1]}/_shipment-tracker"

Fish:
  $ shipment-tracker completion fish > ~/.config/fish/completions/shipment-tracker.fish

PowerShell:
  PS> shipment-tracker completion powershell | Out-String | Invoke-Expression

Carrier names are completed for the track and url commands.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE:                  runCompletion,
}

func init() {
	rootCmd.AddCommand(completionCmd)

	trackCmd.ValidArgsFunction = completeCarrier
	urlCmd.ValidArgsFunction = completeCarrier
}

func runCompletion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	switch args[0] {
	case "bash":
		return rootCmd.GenBashCompletionV2(out, true)
	case "zsh":
		return rootCmd.GenZshCompletion(out)
	case "fish":
		return rootCmd.GenFishCompletion(out, true)
	case "powershell":
		return rootCmd.GenPowerShellCompletionWithDesc(out)
	}
	return nil
}

// completeCarrier completes the first argument with the built-in carrier names
func completeCarrier(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return carriers.NewRegistry(nil).Names(), cobra.ShellCompDirectiveNoFileComp
}

func completeProvider(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{fetch.DefaultHTTP, fetch.AltHTTP, fetch.Headless, fetch.OAuth2HTTP}, cobra.ShellCompDirectiveNoFileComp
}
