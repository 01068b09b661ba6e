// cmd/configcmd/config.go
package configcmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/CodeMonkeyCybersecurity/2kc/pkg/config"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_cli"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_err"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and initialize the 2kc configuration",
	RunE: kc_cli.Wrap(func(rc *kc_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		return cmd.Help()
	}),
}

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file to ~/.2kc/config.json",
	RunE: kc_cli.Wrap(func(rc *kc_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		logger := otelzap.Ctx(rc.Ctx)

		path, err := config.DefaultPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !initForce {
			return kc_err.NewExpectedError(rc.Ctx,
				cerr.Newf("config already exists at %s (use --force to overwrite)", path))
		}

		if err := config.Save(path, config.Default()); err != nil {
			return err
		}
		logger.Info("Config written", zap.String("path", path))
		fmt.Println("Wrote", path)
		return nil
	}),
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with credentials redacted",
	RunE: kc_cli.Wrap(func(rc *kc_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		path, err := config.DefaultPath()
		if err != nil {
			return err
		}
		cfg, err := config.Load(path)
		if err != nil {
			return kc_err.NewExpectedError(rc.Ctx, err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg.Redacted())
	}),
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	ConfigCmd.AddCommand(initCmd)
	ConfigCmd.AddCommand(showCmd)
}
