// Package cmd provides the command-line interface of kmem.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/kmem/bootinfo"
	"github.com/sarchlab/kmem/kernel"
	"github.com/sarchlab/kmem/machine"
	"github.com/sarchlab/kmem/sim"
	"github.com/sarchlab/kmem/vga"
)

// Environment variables that provide flag defaults. They can also be set in a
// .env file in the working directory.
const (
	envMachine     = "KMEM_MACHINE"
	envTraceDB     = "KMEM_TRACE_DB"
	envMonitorPort = "KMEM_MONITOR_PORT"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kmem",
		Short: "kmem boots a kernel memory manager on a simulated machine.",
		Long: `kmem simulates an x86_64 machine, boots the memory manager of ` +
			`a kernel on it, and lets you inspect the page tables it builds.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
				log.SetOutput(io.Discard)
			}

			return loadEnv(".env")
		},
	}

	rootCmd.PersistentFlags().String("machine", "",
		"Machine description file (.toml or .yaml). "+
			"Defaults to $"+envMachine+" or a 32 MiB PC.")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false,
		"Do not log the kernel diagnostics to stderr.")
	rootCmd.PersistentFlags().Int("tlb-size", 0,
		"Number of TLB entries, overriding the machine description.")

	rootCmd.AddCommand(newBootCmd(), newTranslateCmd(), newDumpCmd())

	return rootCmd
}

// Execute runs the command line and exits.
func Execute() {
	err := newRootCmd().Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

func loadEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}

// stringFlag returns the flag value, falling back to the environment when the
// flag is not given.
func stringFlag(cmd *cobra.Command, name, env string) string {
	value, _ := cmd.Flags().GetString(name)
	if !cmd.Flags().Changed(name) {
		if v, ok := os.LookupEnv(env); ok {
			return v
		}
	}

	return value
}

func buildMachine(cmd *cobra.Command) (*machine.Machine, error) {
	d := bootinfo.DefaultDescription()

	if path := stringFlag(cmd, "machine", envMachine); path != "" {
		var err error

		d, err = bootinfo.LoadDescription(path)
		if err != nil {
			return nil, err
		}
	}

	tlbSize, _ := cmd.Flags().GetInt("tlb-size")

	return machine.MakeBuilder().
		WithDescription(d).
		WithTLBSize(tlbSize).
		Build(d.Name)
}

// runKernel boots the kernel and turns a halt into an error.
func runKernel(
	m *machine.Machine,
	screen *vga.Writer,
	hooks ...sim.Hook,
) (ctx *kernel.Context, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		fatal, ok := r.(*kernel.Fatal)
		if !ok {
			panic(r)
		}

		err = fatal
	}()

	ctx = kernel.Boot(m.BootInfo(), m.MMU(), m.MMU(), screen, hooks...)

	return ctx, nil
}

func bootOrBootstrap(
	cmd *cobra.Command,
	m *machine.Machine,
) error {
	bootstrap, _ := cmd.Flags().GetBool("bootstrap")
	if bootstrap {
		return nil
	}

	_, err := runKernel(m, nil)
	if err != nil {
		return fmt.Errorf("booting %s: %w", m.Name(), err)
	}

	return nil
}
