package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sarchlab/kmem/mem/vm/mmu"
	"github.com/sarchlab/kmem/mem/vm/paging"
)

func newTranslateCmd() *cobra.Command {
	translateCmd := &cobra.Command{
		Use:   "translate ADDRESS...",
		Short: "Walk the page tables for virtual addresses.",
		Long: "`translate` boots the kernel and shows, for every address, " +
			"the entries the MMU reads and the physical address it gets.",
		Args: cobra.MinimumNArgs(1),
		RunE: runTranslate,
	}

	translateCmd.Flags().Bool("bootstrap", false,
		"Translate with the bootstrap tables, without booting the kernel.")

	return translateCmd
}

func runTranslate(cmd *cobra.Command, args []string) error {
	addrs := make([]uint64, 0, len(args))

	for _, arg := range args {
		addr, err := strconv.ParseUint(arg, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid address %q: %w", arg, err)
		}

		addrs = append(addrs, addr)
	}

	m, err := buildMachine(cmd)
	if err != nil {
		return err
	}

	if err := bootOrBootstrap(cmd, m); err != nil {
		return err
	}

	for _, addr := range addrs {
		printTranslation(cmd.OutOrStdout(), m.MMU(), addr)
	}

	return nil
}

func printTranslation(w io.Writer, c *mmu.Comp, vAddr uint64) {
	pAddr, writable, steps, err := c.Lookup(vAddr)

	switch {
	case err != nil:
		fmt.Fprintf(w, "%#x: %v\n", vAddr, err)
	case writable:
		fmt.Fprintf(w, "%#x -> %#x (writable)\n", vAddr, pAddr)
	default:
		fmt.Fprintf(w, "%#x -> %#x (read-only)\n", vAddr, pAddr)
	}

	for _, s := range steps {
		fmt.Fprintf(w, "  %s[%d] at %#x: %s\n",
			paging.Level(s.Level), s.Index, s.TableAddr, paging.Entry(s.Entry))
	}
}
