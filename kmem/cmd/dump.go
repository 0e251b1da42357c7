package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newDumpCmd() *cobra.Command {
	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "List what the active page tables map.",
		Long: "`dump` boots the kernel and lists the mapped virtual ranges " +
			"with their physical addresses and leaf flags.",
		Args: cobra.NoArgs,
		RunE: runDump,
	}

	dumpCmd.Flags().Bool("bootstrap", false,
		"Dump the bootstrap tables, without booting the kernel.")

	return dumpCmd
}

func runDump(cmd *cobra.Command, _ []string) error {
	m, err := buildMachine(cmd)
	if err != nil {
		return err
	}

	if err := bootOrBootstrap(cmd, m); err != nil {
		return err
	}

	runs, err := m.Mappings()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "VIRTUAL\tPHYSICAL\tSIZE\tFLAGS")

	for _, r := range runs {
		fmt.Fprintf(tw, "[%#x, %#x)\t%#x\t%#x\t%s\n",
			r.VStart, r.VEnd(), r.PStart, r.Size, r.Flags)
	}

	return tw.Flush()
}
