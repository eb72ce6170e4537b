// Command shop is the storefront command-line client: it browses the
// catalog, keeps a local cart, signs in against the shop API and places
// orders.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appkg "github.com/xenking/kart-storefront/internal/app"
)

const usage = `Usage: shop [flags] <command> [args]

Commands:
  products [-search s] [-brand b] [-color c] [-size s]
  product <id> [-add n]
  cart                       show the cart
  cart add <id> [n]          add n units (default 1)
  cart set <id> <n>          set the quantity, 0 removes the line
  cart rm <id>
  cart clear
  login -u <user> [-p <pass>] password defaults to $SHOP_PASSWORD
  logout
  whoami
  checkout
  orders                     orders placed from this client
  admin products
  admin create -title t -price p [-description d] [-brand b] [-color c] [-size s] [-category id]

Flags:
`

func main() {
	var (
		verbose bool
		apiURL  string
		backend string
	)
	flag.BoolVar(&verbose, "v", false, "log debug output to stderr")
	flag.StringVar(&apiURL, "api-url", "", "shop API base URL (overrides config)")
	flag.StringVar(&backend, "storage", "", "storage backend: file, memory, redis or postgres (overrides config)")
	flag.Usage = func() {
		_, _ = io.WriteString(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	lg := newLogger(verbose)
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	if err := run(ctx, lg, flag.Args(), apiURL, backend); err != nil {
		var uErr *usageError
		if errors.As(err, &uErr) {
			fmt.Fprintln(os.Stderr, uErr.Error())
			flag.Usage()
			cancel()
			os.Exit(2)
		}
		lg.Debug("Command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, message(err))
		cancel()
		os.Exit(1)
	}
}

func newLogger(verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = !verbose
	lg, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return lg
}

func run(ctx context.Context, lg *zap.Logger, args []string, apiURL, backend string) error {
	cfg, err := appkg.LoadConfig(appkg.LoadOptions{SkipFlags: true})
	if err != nil {
		return err
	}
	if apiURL != "" {
		cfg.API.BaseURL = apiURL
	}
	if backend != "" {
		cfg.Storage.Backend = backend
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	sf, err := appkg.New(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer sf.Close()

	c := &cli{sf: sf, out: os.Stdout}
	return c.dispatch(ctx, args)
}
