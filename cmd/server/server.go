// cmd/server/server.go
package server

import (
	"fmt"

	"github.com/CodeMonkeyCybersecurity/2kc/pkg/config"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/daemon"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_cli"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_err"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_io"
	kcserver "github.com/CodeMonkeyCybersecurity/2kc/pkg/server"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/service"
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var ServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Run and supervise the 2kc broker daemon",
	RunE: kc_cli.Wrap(func(rc *kc_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		return cmd.Help()
	}),
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the broker daemon in the background",
	RunE: kc_cli.Wrap(func(rc *kc_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		// fail fast before forking when the config cannot serve a server
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Server.AuthToken == "" {
			return kc_err.NewExpectedError(rc.Ctx,
				cerr.New("server.authToken is not configured; run '2kc server token generate' first"))
		}

		pid, err := daemon.Start(rc.Ctx)
		if err != nil {
			return kc_err.NewExpectedError(rc.Ctx, err)
		}
		fmt.Println("Server started with pid", pid)
		return nil
	}),
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the broker daemon",
	RunE: kc_cli.Wrap(func(rc *kc_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		if err := daemon.Stop(rc.Ctx); err != nil {
			return kc_err.NewExpectedError(rc.Ctx, err)
		}
		fmt.Println("Server stopped")
		return nil
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the broker daemon is running",
	RunE: kc_cli.Wrap(func(rc *kc_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		pid, err := daemon.Status(rc.Ctx)
		if err != nil {
			if cerr.Is(err, daemon.ErrNotRunning) {
				fmt.Println("Server is not running")
				return nil
			}
			return err
		}
		fmt.Println("Server running with pid", pid)
		return nil
	}),
}

// runCmd is the foreground server process the daemon supervisor spawns.
var runCmd = &cobra.Command{
	Use:    "run",
	Short:  "Run the broker server in the foreground",
	Hidden: true,
	RunE: kc_cli.Wrap(func(rc *kc_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		svc, err := service.NewStandalone(cfg)
		if err != nil {
			return err
		}

		srv, err := kcserver.New(cfg, svc)
		if err != nil {
			return err
		}
		return srv.ListenAndServe(rc.Ctx)
	}),
}

func loadConfig() (*config.Config, error) {
	path, err := config.DefaultPath()
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

func init() {
	ServerCmd.AddCommand(startCmd)
	ServerCmd.AddCommand(stopCmd)
	ServerCmd.AddCommand(statusCmd)
	ServerCmd.AddCommand(runCmd)
	ServerCmd.AddCommand(TokenCmd)
}
