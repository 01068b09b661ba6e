// cmd/self/self.go
package self

import (
	"fmt"

	"github.com/CodeMonkeyCybersecurity/2kc/pkg/install"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_cli"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_err"
	"github.com/CodeMonkeyCybersecurity/2kc/pkg/kc_io"
	"github.com/spf13/cobra"
)

var SelfCmd = &cobra.Command{
	Use:   "self",
	Short: "Manage the 2kc installation",
	RunE: kc_cli.Wrap(func(rc *kc_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		return cmd.Help()
	}),
}

var installWorkspace string

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Symlink 2kc into an agent tool's workspace",
	Long: `Drop a 2kc symlink into <workspace>/bin so a sibling agent tool can
invoke the broker without PATH changes.`,
	RunE: kc_cli.Wrap(func(rc *kc_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		link, err := install.Symlink(rc.Ctx, installWorkspace)
		if err != nil {
			return kc_err.NewExpectedError(rc.Ctx, err)
		}
		fmt.Println("Installed", link)
		return nil
	}),
}

func init() {
	installCmd.Flags().StringVar(&installWorkspace, "workspace", "", "workspace directory of the sibling tool")
	_ = installCmd.MarkFlagRequired("workspace")
	SelfCmd.AddCommand(installCmd)
}
