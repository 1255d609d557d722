package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/authctl"
	"github.com/MrEthical07/authctl/metrics/export/prometheus"
)

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string, out io.Writer) int
}

var commands = map[string]command{
	"status":   {"print the current session state", runStatus},
	"signup":   {"create an account (-email, -password, -name)", runSignUp},
	"signin":   {"sign in with email and password", runSignIn},
	"signout":  {"end the current session", runSignOut},
	"reset":    {"request a password reset email", runReset},
	"oauth":    {"print the authorization URL for a provider", runOAuth},
	"redirect": {"resolve a redirect URI into a session", runRedirect},
	"watch":    {"print every state transition until interrupted", runWatch},
}

func parse(name string, args []string, setup func(*flag.FlagSet)) (*flag.FlagSet, bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	if setup != nil {
		setup(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, false
	}
	return fs, true
}

// start begins reconciliation and waits until the initial session fetch or
// the first auth event resolves.
func start(ctx context.Context, a *app) error {
	c := a.controller
	initialized := make(chan struct{}, 1)
	unsubscribe := c.Subscribe(func(st authctl.State) {
		if !st.Initializing {
			select {
			case initialized <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := c.Start(ctx); err != nil {
		a.logger.Warn("auth event subscription unavailable", "error", err)
	}
	if !c.State().Initializing {
		return nil
	}

	timeout := a.cfg.Backend.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-initialized:
		return nil
	case <-timer.C:
		return errors.New("timed out waiting for the initial session")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runStatus(ctx context.Context, a *app, args []string, out io.Writer) int {
	if _, ok := parse("status", args, nil); !ok {
		return exitUsage
	}
	if err := start(ctx, a); err != nil {
		fmt.Fprintln(out, err)
		return exitFailure
	}
	if err := writeJSON(out, viewState(a.controller.State())); err != nil {
		return exitFailure
	}
	return exitOK
}

func runSignUp(ctx context.Context, a *app, args []string, out io.Writer) int {
	var email, password, name string
	if _, ok := parse("signup", args, func(fs *flag.FlagSet) {
		fs.StringVar(&email, "email", "", "account email")
		fs.StringVar(&password, "password", "", "account password")
		fs.StringVar(&name, "name", "", "display name")
	}); !ok {
		return exitUsage
	}
	if err := start(ctx, a); err != nil {
		fmt.Fprintln(out, err)
		return exitFailure
	}
	res := a.controller.SignUp(ctx, email, password, name)
	return emit(out, newReport("signup", res, func(v authctl.SignUpResult) any {
		return map[string]any{
			"user":               v.User,
			"needs_confirmation": v.NeedsConfirmation,
		}
	}, a.controller.State()))
}

func runSignIn(ctx context.Context, a *app, args []string, out io.Writer) int {
	var email, password string
	if _, ok := parse("signin", args, func(fs *flag.FlagSet) {
		fs.StringVar(&email, "email", "", "account email")
		fs.StringVar(&password, "password", "", "account password")
	}); !ok {
		return exitUsage
	}
	if err := start(ctx, a); err != nil {
		fmt.Fprintln(out, err)
		return exitFailure
	}
	res := a.controller.SignIn(ctx, email, password)
	return emit(out, newReport("signin", res, sessionView, a.controller.State()))
}

func runSignOut(ctx context.Context, a *app, args []string, out io.Writer) int {
	if _, ok := parse("signout", args, nil); !ok {
		return exitUsage
	}
	if err := start(ctx, a); err != nil {
		fmt.Fprintln(out, err)
		return exitFailure
	}
	res := a.controller.SignOut(ctx)
	return emit(out, newReport[struct{}]("signout", res, nil, a.controller.State()))
}

func runReset(ctx context.Context, a *app, args []string, out io.Writer) int {
	var email string
	if _, ok := parse("reset", args, func(fs *flag.FlagSet) {
		fs.StringVar(&email, "email", "", "account email")
	}); !ok {
		return exitUsage
	}
	res := a.controller.ResetPassword(ctx, email)
	return emit(out, newReport[struct{}]("reset", res, nil, a.controller.State()))
}

func runOAuth(ctx context.Context, a *app, args []string, out io.Writer) int {
	var provider string
	if _, ok := parse("oauth", args, func(fs *flag.FlagSet) {
		fs.StringVar(&provider, "provider", "", "OAuth provider; empty uses the configured default")
	}); !ok {
		return exitUsage
	}
	res := a.controller.SignInWithOAuth(ctx, provider)
	return emit(out, newReport("oauth", res, func(u string) any {
		return map[string]string{"authorization_url": u}
	}, a.controller.State()))
}

func runRedirect(ctx context.Context, a *app, args []string, out io.Writer) int {
	fs, ok := parse("redirect", args, nil)
	if !ok {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(out, "usage: authctl redirect <uri>")
		return exitUsage
	}
	if err := start(ctx, a); err != nil {
		fmt.Fprintln(out, err)
		return exitFailure
	}
	res := a.controller.ResolveRedirect(ctx, fs.Arg(0))
	return emit(out, newReport("redirect", res, sessionView, a.controller.State()))
}

func runWatch(ctx context.Context, a *app, args []string, out io.Writer) int {
	var metricsAddr string
	if _, ok := parse("watch", args, func(fs *flag.FlagSet) {
		fs.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	}); !ok {
		return exitUsage
	}

	c := a.controller
	states := make(chan authctl.State, 32)
	unsubscribe := c.Subscribe(func(st authctl.State) {
		select {
		case states <- st:
		default:
			a.logger.Warn("state transition not printed, output is behind", "version", st.Version)
		}
	})
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := writeJSON(out, viewState(c.State())); err != nil {
			return err
		}
		for {
			select {
			case <-gctx.Done():
				return nil
			case st := <-states:
				if err := writeJSON(out, viewState(st)); err != nil {
					return err
				}
			}
		}
	})

	if err := c.Start(gctx); err != nil {
		a.logger.Warn("auth event subscription unavailable", "error", err)
	}

	if a.refresher != nil {
		stopRefresh := a.refresher.StartAutoRefresh(gctx)
		g.Go(func() error {
			<-gctx.Done()
			stopRefresh()
			return nil
		})
	}

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           prometheus.NewPrometheusExporter(c).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return gctx },
		}
		g.Go(func() error {
			a.logger.Info("serving metrics", "addr", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		a.logger.Error("watch stopped", "error", err)
		return exitFailure
	}
	return exitOK
}
