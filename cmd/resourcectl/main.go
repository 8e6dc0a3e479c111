// Command resourcectl reads and writes backend resources through the cached
// client, for scripting and for poking at a running mock API.
//
//	resourcectl [flags] <command> [resource] [id]
//
// Commands are resources, list, get, document, create, update, patch,
// delete and invalidate.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/subosito/gotenv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "resourcectl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, flags := newOptions()
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := gotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", opts.envFile, err)
	}

	cmd, err := parseCommand(flags.Args())
	if err != nil {
		return err
	}

	app, err := newApp(ctx, opts, stdout)
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.execute(ctx, cmd); err != nil {
		return err
	}
	if opts.stats {
		return app.printStats()
	}
	return nil
}
