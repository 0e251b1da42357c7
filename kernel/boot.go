package kernel

import (
	"fmt"
	"log"

	"github.com/sarchlab/kmem/bootinfo"
	"github.com/sarchlab/kmem/mem/vm/paging"
	"github.com/sarchlab/kmem/sim"
	"github.com/sarchlab/kmem/vga"
)

// Fatal is the value the kernel panics with when it halts.
type Fatal struct {
	Err   error
	State RemapState
}

func (f *Fatal) Error() string {
	return fmt.Sprintf("kernel halted in state %s: %v", f.State, f.Err)
}

func (f *Fatal) Unwrap() error {
	return f.Err
}

// Halt reports err on the screen and in the log, then stops the kernel by
// panicking with a *Fatal. ctx may be nil if the kernel halts before it has a
// context.
func Halt(ctx *Context, screen *vga.Writer, err error) {
	fatal := &Fatal{Err: err}

	if ctx == nil {
		ctx = &Context{Screen: screen, Logger: log.Default()}
	}

	fatal.State = ctx.State
	ctx.Logf(vga.LevelError, "%v", fatal)

	panic(fatal)
}

// Boot brings up memory management on the machine described by info. It
// never returns an error: every failure, including broken invariants of the
// paging code, halts the kernel through Halt.
func Boot(
	info bootinfo.Info,
	mem paging.Memory,
	cpu paging.CPU,
	screen *vga.Writer,
	hooks ...sim.Hook,
) *Context {
	var ctx *Context

	defer func() {
		r := recover()
		if r == nil {
			return
		}

		if _, ok := r.(*Fatal); ok {
			panic(r)
		}

		Halt(ctx, screen, fmt.Errorf("panic: %v", r))
	}()

	bannerErr := printBanner(screen)

	ctx, err := NewContext(info, mem, cpu, screen)
	if err != nil {
		Halt(nil, screen, err)
	}

	if bannerErr != nil {
		ctx.screenUnavailable(bannerErr)
	}

	for _, h := range hooks {
		ctx.Active.AcceptHook(h)
	}

	ctx.Logf(vga.LevelInfo, "remapping the kernel")

	if _, err := RemapKernel(ctx); err != nil {
		Halt(ctx, screen, err)
	}

	ctx.Logf(vga.LevelInfo, "kernel remapped, %d frames in use",
		ctx.Allocator.Allocated())

	return ctx
}

func printBanner(screen *vga.Writer) error {
	if screen == nil {
		return nil
	}

	if err := screen.Clear(); err != nil {
		return err
	}

	screen.SetColor(vga.Yellow, vga.Black)
	defer screen.SetColor(vga.LightGrey, vga.Black)

	return screen.Printf("< kmem >\n")
}
