/* cmd/root.go */

package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	// Subcommands
	configcmd "github.com/CodeMonkeyCybersecurity/2kc/cmd/configcmd"
	requestcmd "github.com/CodeMonkeyCybersecurity/2kc/cmd/request"
	secretscmd "github.com/CodeMonkeyCybersecurity/2kc/cmd/secrets"
	selfcmd "github.com/CodeMonkeyCybersecurity/2kc/cmd/self"
	servercmd "github.com/CodeMonkeyCybersecurity/2kc/cmd/server"

	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_err"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/logger"
)

// RootCmd is the base command for 2kc.
var RootCmd = &cobra.Command{
	Use:   "2kc",
	Short: "2kc local secret broker",
	Long: `2kc brokers access to local secrets for automated agents.

Secrets are only ever named by id or slug; every access carries a
justification, may require human approval, and yields a single-use,
time-bound grant whose secret is injected into exactly one child process.
The child's output is scrubbed of the secret on its way back.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// RegisterCommands adds all subcommands to the root command.
func RegisterCommands() {
	RootCmd.AddCommand(secretscmd.SecretsCmd)
	RootCmd.AddCommand(requestcmd.RequestCmd)
	RootCmd.AddCommand(configcmd.ConfigCmd)
	RootCmd.AddCommand(servercmd.ServerCmd)
	RootCmd.AddCommand(selfcmd.SelfCmd)
}

// Execute runs the CLI and exits with the mapped code. The injected
// child's non-zero exit code is forwarded verbatim.
func Execute() {
	RegisterCommands()

	err := RootCmd.Execute()

	if err != nil {
		if !kc_err.IsExpectedUserError(err) {
			logger.L().Debug("Command returned error", zap.Error(err))
		}
		RootCmd.PrintErrln("Error:", err.Error())
		logger.Sync()
		os.Exit(kc_err.GetExitCode(err))
	}
	logger.Sync()
}
