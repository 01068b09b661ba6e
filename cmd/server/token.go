// cmd/server/token.go
package server

import (
	"fmt"

	"github.com/CodeMonkeyCybersecurity/2kc/pkg/config"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/crypto"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_cli"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_io"
	"github.com/spf13/cobra"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
)

var TokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the server auth token",
	RunE: kc_cli.Wrap(func(rc *kc_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		return cmd.Help()
	}),
}

var tokenGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a fresh auth token and store it in the config",
	Long: `Generate a random bearer token, write it into server.authToken, and
print it once. Clients need this token to reach the broker over HTTP.`,
	RunE: kc_cli.Wrap(func(rc *kc_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		token, err := crypto.GenerateAuthToken()
		if err != nil {
			return err
		}

		path, err := config.DefaultPath()
		if err != nil {
			return err
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg.Server.AuthToken = token
		if err := config.Save(path, cfg); err != nil {
			return err
		}

		otelzap.Ctx(rc.Ctx).Info("Auth token rotated")
		fmt.Println(token)
		return nil
	}),
}

func init() {
	TokenCmd.AddCommand(tokenGenerateCmd)
}
