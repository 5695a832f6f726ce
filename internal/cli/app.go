// Package cli implements hotspotctl, the operator command line for the
// credential vault and the payment ledger.
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/hotspotpay/internal/server"
)

// ErrUsage is returned for unknown commands and bad flags.
var ErrUsage = errors.New("usage error")

const usage = `usage: hotspotctl [config flags] <command> [flags]

commands:
  keygen                                   print a new vault key
  credentials set      -user U [-id ID] [-provider P] [-env E] [-api-key K] [-secret]
  credentials list     -user U
  credentials check                        test-decrypt every stored record
  credentials verify   -user U -id ID
  credentials activate|deactivate -user U -id ID
  routers set-password -user U -id R [-clear]
  routers check                            test-decrypt every router password
  payments create      -user U -router R -package P -phone N -amount A [-currency C] [-method M] [-mac MAC] [-ip IP]
  payments check       -user U (-id ID | -all)
  payments retry       -user U -id ID
  payments grant       -user U -id ID      grant access again for a completed payment
  payments fail        -user U -id ID [-reason R]
  payments cancel      -user U -id ID
  payments list        -user U [-status S]
`

// Connector opens the backend. It is called only by commands that need it.
type Connector func(ctx context.Context) (*server.App, error)

type App struct {
	connect Connector
	backend *server.App
	out     io.Writer
	reader  *bufio.Reader
}

func NewApp(out io.Writer, in io.Reader, connect Connector) *App {
	return &App{connect: connect, out: out, reader: bufio.NewReader(in)}
}

// Run executes one command. args are the process arguments without the
// program name; leading config flags are skipped.
func (a *App) Run(ctx context.Context, args []string) error {
	words := SplitCommand(args)
	if len(words) == 0 {
		fmt.Fprint(a.out, usage)
		return ErrUsage
	}

	switch words[0] {
	case "help":
		fmt.Fprint(a.out, usage)
		return nil
	case "keygen":
		return a.Keygen()
	case "credentials", "routers", "payments":
	default:
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, words[0])
	}

	if len(words) < 2 {
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("%w: %s needs a subcommand", ErrUsage, words[0])
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.open(ctx, cancel); err != nil {
		return err
	}

	switch words[0] {
	case "credentials":
		return a.Credentials(ctx, words[1], words[2:])
	case "routers":
		return a.Routers(ctx, words[1], words[2:])
	}
	return a.Payments(ctx, words[1], words[2:])
}

func (a *App) open(ctx context.Context, cancel context.CancelFunc) error {
	if a.backend != nil {
		return nil
	}
	backend, err := a.connect(ctx)
	if err != nil {
		return err
	}
	backend.InitSignalHandler(cancel)
	a.backend = backend
	return nil
}

// Close releases the backend if one was opened.
func (a *App) Close() error {
	if a.backend == nil {
		return nil
	}
	return a.backend.Close()
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	return nil
}

func required(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: -%s is required", ErrUsage, name)
	}
	return nil
}
