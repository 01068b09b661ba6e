// cmd/secrets/secrets.go
package secrets

import (
	"fmt"
	"strings"

	"github.com/CodeMonkeyCybersecurity/2kc/pkg/config"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_cli"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_err"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_io"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/service"
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

var SecretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage entries in the local secret store",
	Long: `Manage the local secret store.

Listing and metadata operations never print secret values; values only
ever reach a child process through an approved grant.

Examples:
  2kc secrets add deploy-key --tags dev
  2kc secrets list
  2kc secrets remove 6f1c7e9a-...`,
	RunE: kc_cli.Wrap(func(rc *kc_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		return cmd.Help()
	}),
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List secrets (metadata only)",
	RunE: kc_cli.Wrap(func(rc *kc_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		svc, err := resolveService()
		if err != nil {
			return err
		}
		items, err := svc.ListSecrets(rc.Ctx)
		if err != nil {
			return kc_err.NewExpectedError(rc.Ctx, err)
		}
		if len(items) == 0 {
			fmt.Println("No secrets stored.")
			return nil
		}
		for _, item := range items {
			fmt.Printf("%s  %-20s  %s\n", item.UUID, item.Ref, strings.Join(item.Tags, ","))
		}
		return nil
	}),
}

var (
	addTags  []string
	addValue string
)

var addCmd = &cobra.Command{
	Use:   "add <ref>",
	Short: "Add a secret under a human slug",
	Long: `Add a secret to the store.

The value is taken from --value, or from stdin when --value is omitted
(so it does not end up in shell history).`,
	Args: cobra.ExactArgs(1),
	RunE: kc_cli.Wrap(func(rc *kc_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		logger := otelzap.Ctx(rc.Ctx)

		value := addValue
		if value == "" {
			var err error
			value, err = readValueFromStdin()
			if err != nil {
				return err
			}
		}
		if value == "" {
			return kc_err.NewExpectedError(rc.Ctx, cerr.New("secret value must not be empty"))
		}

		svc, err := resolveService()
		if err != nil {
			return err
		}
		uuid, err := svc.AddSecret(rc.Ctx, args[0], value, addTags)
		if err != nil {
			return kc_err.NewExpectedError(rc.Ctx, err)
		}
		logger.Info("Secret stored", zap.String("ref", args[0]), zap.String("uuid", uuid))
		fmt.Println(uuid)
		return nil
	}),
}

var removeCmd = &cobra.Command{
	Use:   "remove <uuid>",
	Short: "Remove a secret by uuid",
	Args:  cobra.ExactArgs(1),
	RunE: kc_cli.Wrap(func(rc *kc_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		svc, err := resolveService()
		if err != nil {
			return err
		}
		if err := svc.RemoveSecret(rc.Ctx, args[0]); err != nil {
			return kc_err.NewExpectedError(rc.Ctx, err)
		}
		fmt.Println("Removed", args[0])
		return nil
	}),
}

func resolveService() (service.Service, error) {
	path, err := config.DefaultPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return service.New(cfg)
}

func init() {
	addCmd.Flags().StringVar(&addValue, "value", "", "secret value (read from stdin when omitted)")
	addCmd.Flags().StringSliceVar(&addTags, "tags", nil, "tags attached to the secret")

	SecretsCmd.AddCommand(listCmd)
	SecretsCmd.AddCommand(addCmd)
	SecretsCmd.AddCommand(removeCmd)
}
