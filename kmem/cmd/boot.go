package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/sarchlab/kmem/datarecording"
	"github.com/sarchlab/kmem/kernel"
	"github.com/sarchlab/kmem/machine"
	"github.com/sarchlab/kmem/monitoring"
	"github.com/sarchlab/kmem/sim"
	"github.com/sarchlab/kmem/tracing"
	"github.com/sarchlab/kmem/vga"
)

func newBootCmd() *cobra.Command {
	bootCmd := &cobra.Command{
		Use:   "boot",
		Short: "Boot the kernel and print the screen.",
		Long: "`boot` builds the machine, remaps the kernel and prints what " +
			"the kernel wrote on the screen. It fails if the kernel halts.",
		Args: cobra.NoArgs,
		RunE: runBoot,
	}

	bootCmd.Flags().String("trace", "",
		"Record the paging events into this SQLite database "+
			"(without the .sqlite3 suffix). Defaults to $"+envTraceDB+".")
	bootCmd.Flags().Bool("unique-ids", false,
		"Give trace events globally unique IDs instead of sequence numbers.")
	bootCmd.Flags().Bool("monitor", false,
		"Serve the machine state over HTTP after booting, until interrupted.")
	bootCmd.Flags().Int("port", 0,
		"Port of the monitoring server. Defaults to $"+envMonitorPort+
			" or a random port.")
	bootCmd.Flags().Bool("open", false,
		"Open the monitoring page in the browser.")

	return bootCmd
}

func runBoot(cmd *cobra.Command, _ []string) error {
	m, err := buildMachine(cmd)
	if err != nil {
		return err
	}

	screen := vga.NewWriter(m.MMU())
	out := cmd.OutOrStdout()

	var (
		hooks  []sim.Hook
		tracer *tracing.PagingTracer
	)

	tracePath := stringFlag(cmd, "trace", envTraceDB)
	if tracePath != "" {
		if unique, _ := cmd.Flags().GetBool("unique-ids"); unique {
			sim.UseParallelIDGenerator()
		}

		tracer = tracing.NewPagingTracer(datarecording.New(tracePath))
		tracing.CollectPagingTrace(m.MMU(), tracer)
		hooks = append(hooks, tracer)
	}

	ctx, bootErr := runKernel(m, screen, hooks...)

	if tracer != nil {
		tracer.Terminate()
	}

	if err := printScreen(out, screen); err != nil {
		return err
	}

	if bootErr != nil {
		return bootErr
	}

	printSummary(out, m, ctx)

	monitor, _ := cmd.Flags().GetBool("monitor")
	if !monitor {
		return nil
	}

	return serve(cmd, m, ctx, screen, tracer, tracePath)
}

func printScreen(w io.Writer, screen *vga.Writer) error {
	rows, err := screen.Screen()
	if err != nil {
		return err
	}

	first := 0
	for first < len(rows) && rows[first] == "" {
		first++
	}

	for _, row := range rows[first:] {
		fmt.Fprintln(w, row)
	}

	return nil
}

func printSummary(w io.Writer, m *machine.Machine, ctx *kernel.Context) {
	stats := m.MMU().Stats()

	fmt.Fprintf(w, "\nstate:       %s\n", ctx.State)
	fmt.Fprintf(w, "root table:  %#x\n", m.MMU().ReadCR3())
	fmt.Fprintf(w, "frames used: %d\n", ctx.Allocator.Allocated())
	fmt.Fprintf(w, "page walks:  %d\n", stats.Walks)
	fmt.Fprintf(w, "TLB:         %d hits, %d misses, %d flushes\n",
		stats.TLB.Hits, stats.TLB.Misses, stats.TLBFlushes)
}

func serve(
	cmd *cobra.Command,
	m *machine.Machine,
	ctx *kernel.Context,
	screen *vga.Writer,
	tracer *tracing.PagingTracer,
	tracePath string,
) error {
	port, _ := cmd.Flags().GetInt("port")
	if !cmd.Flags().Changed("port") {
		if v, ok := os.LookupEnv(envMonitorPort); ok {
			p, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", envMonitorPort, err)
			}

			port = p
		}
	}

	mon := monitoring.NewMonitor().WithPortNumber(port)
	mon.RegisterMMU(m.MMU())
	mon.RegisterComponent(ctx.Active)
	mon.RegisterScreen(screen)

	if tracer != nil {
		mon.RegisterTracer(tracer)

		reader := datarecording.NewReader(tracePath + ".sqlite3")
		defer reader.Close()

		mon.RegisterTraceReader(reader)
	}

	url := mon.StartServer()

	if open, _ := cmd.Flags().GetBool("open"); open {
		if err := browser.OpenURL(url); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "cannot open browser: %v\n", err)
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	return nil
}
