package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roman-kulish/unit-companion/cmd/companion/app"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

	opts, err := parseFlags(os.Args[0], os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}

	if opts.showVersion {
		fmt.Println("companion", version)
		return
	}

	configPath := opts.configPath
	if configPath == "" {
		logger.Error("no configuration file provided")
		os.Exit(1)
	}

	config, err := app.LoadConfig(configPath)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", configPath))
		os.Exit(1)
	}

	logLevel.Set(config.Settings.LogLevel)
	logger.Info("starting companion", slog.String("version", version), slog.String("link", config.Link.URL))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err = app.Run(ctx, config, logger); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	showVersion bool
}

// parseFlags parses the command line; usage and parse errors go to output.
func parseFlags(name string, args []string, output io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "c", "", "Path to the configuration file")
	fs.BoolVar(&opts.showVersion, "version", false, "Print the version and exit")
	fs.Usage = func() {
		fmt.Fprintf(output, "Usage: %s -c <config.yaml>\n\n", name)
		fmt.Fprintln(output, "Keeps the paired unit in sync with the phone: status, weather, radar, trips and recordings.")
		fmt.Fprintln(output)
		fs.PrintDefaults()
	}

	err := fs.Parse(args)
	return opts, err
}
