// cmd/request/request.go
package request

import (
	"os"
	"strings"

	"github.com/CodeMonkeyCybersecurity/2kc/pkg/approval"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/config"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_cli"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_err"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_io"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/orchestrator"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/service"
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var (
	flagReason   string
	flagTask     string
	flagEnv      string
	flagCmd      string
	flagDuration int
)

var RequestCmd = &cobra.Command{
	Use:   "request <ref-or-uuid>... --reason <why> --task <ref> --env <NAME> [--duration <seconds>] -- <command>...",
	Short: "Request secret access and run a command with it injected",
	Long: `Request access to one or more secrets and, once granted, run a command
with the first secret injected under --env. Further secrets are available
through full-value 2k://<ref-or-uuid> environment placeholders.

The child's stdout and stderr are forwarded with secret values redacted,
and its exit code becomes this command's exit code.

Examples:
  2kc request deploy-key --reason "ship release" --task T-123 --env KEY -- npm publish
  2kc request deploy-key --reason "ship release" --task T-123 --env KEY --cmd "npm publish"`,
	Args: cobra.MinimumNArgs(1),
	RunE: kc_cli.Wrap(func(rc *kc_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		secrets, command := splitArgs(cmd, args)
		if len(command) == 0 && flagCmd != "" {
			command = strings.Fields(flagCmd)
		}
		if len(secrets) == 0 {
			return kc_err.NewExpectedError(rc.Ctx, cerr.New("at least one secret ref or uuid is required"))
		}

		path, err := config.DefaultPath()
		if err != nil {
			return err
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		svc, err := service.New(cfg)
		if err != nil {
			return err
		}

		auditor := orchestrator.NewAuditor(auditChannel(svc, cfg), os.Stderr)
		orch := orchestrator.New(svc, auditor, os.Stdout, os.Stderr)

		return orch.Run(rc.Ctx, orchestrator.Options{
			Secrets:         secrets,
			Reason:          flagReason,
			TaskRef:         flagTask,
			DurationSeconds: flagDuration,
			EnvVarName:      flagEnv,
			Command:         command,
		})
	}),
}

// splitArgs separates secret names from the command given after --.
func splitArgs(cmd *cobra.Command, args []string) (secrets, command []string) {
	if at := cmd.ArgsLenAtDash(); at >= 0 {
		return args[:at], args[at:]
	}
	return args, nil
}

// auditChannel returns the channel audit notifications go to: the
// standalone facade's approval channel, or in client mode a Discord channel
// built from the local config. nil (events dropped) when none is configured.
func auditChannel(svc service.Service, cfg *config.Config) approval.Channel {
	if s, ok := svc.(*service.Standalone); ok {
		return s.Channel()
	}
	if cfg.Discord != nil && cfg.Discord.WebhookURL != "" {
		ch, err := approval.NewDiscordChannel(cfg.Discord.WebhookURL, cfg.Discord.BotToken, cfg.Discord.ChannelID)
		if err == nil {
			return ch
		}
	}
	return nil
}

func init() {
	RequestCmd.Flags().StringVar(&flagReason, "reason", "", "justification for the access (required)")
	RequestCmd.Flags().StringVar(&flagTask, "task", "", "task reference, e.g. a ticket id (required)")
	RequestCmd.Flags().StringVar(&flagEnv, "env", "", "environment variable that receives the first secret")
	RequestCmd.Flags().StringVar(&flagCmd, "cmd", "", "command to run (alternative to passing it after --)")
	RequestCmd.Flags().IntVar(&flagDuration, "duration", 0, "grant duration in seconds (default 300)")
	_ = RequestCmd.MarkFlagRequired("reason")
	_ = RequestCmd.MarkFlagRequired("task")
}
