// Command authctl drives the authentication session controller from a terminal.
//
// Usage:
//
//	authctl [global flags] <command> [flags]
//
// Commands: status, signup, signin, signout, reset, oauth, redirect, watch.
// Configuration comes from AUTHCTL_* environment variables, optionally loaded
// from a .env file. Without AUTHCTL_BACKEND_URL an in-memory demo backend is
// used.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/MrEthical07/authctl"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("authctl", flag.ContinueOnError)
	flags.SetOutput(stderr)
	var (
		envFile    = flags.String("env-file", ".env", "dotenv file to load before reading AUTHCTL_* variables")
		driver     = flags.String("storage", "", "session storage override: memory, sqlite or redis")
		flow       = flags.String("flow", "", "backend flow override: implicit or pkce")
		backendURL = flags.String("url", "", "backend URL override")
		verbose    = flags.Bool("v", false, "debug logging")
		audit      = flags.Bool("audit", false, "write audit events as JSON lines to stderr")
	)
	flags.Usage = func() {
		fmt.Fprintf(stderr, "usage: authctl [flags] <command> [command flags]\n\ncommands:\n")
		names := make([]string, 0, len(commands))
		for name := range commands {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(stderr, "  %-9s %s\n", name, commands[name].summary)
		}
		fmt.Fprintf(stderr, "\nflags:\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return exitUsage
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return exitUsage
	}
	cmd, ok := commands[flags.Arg(0)]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", flags.Arg(0))
		flags.Usage()
		return exitUsage
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "load %s: %v\n", *envFile, err)
		return exitFailure
	}
	cfg, err := authctl.LoadConfigFromEnv()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitFailure
	}
	if *driver != "" {
		cfg.Storage.Driver = *driver
	}
	if *flow != "" {
		cfg.Backend.Flow = *flow
	}
	if *backendURL != "" {
		cfg.Backend.URL = *backendURL
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitFailure
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	var auditOut io.Writer
	if *audit {
		auditOut = stderr
	}
	a, err := newApp(ctx, cfg, logger, auditOut)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitFailure
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	return cmd.run(ctx, a, flags.Args()[1:], stdout)
}
