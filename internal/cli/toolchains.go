package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/buildctl/internal/toolchain"
)

// newToolchainsCommand creates "toolchains", which lists the profiles available on this host.
func newToolchainsCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "toolchains",
		Short: "List toolchain profiles available on this host",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			proj, err := loadProject(opts)
			if err != nil {
				return err
			}
			table, err := toolchain.HostTable(opts.goos(), proj.ToolchainEntries()...)
			if err != nil {
				return configErr(err)
			}

			tw := tabwriter.NewWriter(opts.stdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tGENERATOR\tARCH")
			for _, tc := range table.Sorted() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", tc.Name, orDash(tc.Generator), orDash(tc.Arch))
			}
			return tw.Flush()
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
