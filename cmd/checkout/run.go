package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/utafrali/paycheckout/internal/app"
	"github.com/utafrali/paycheckout/internal/config"
	"github.com/utafrali/paycheckout/internal/domain"
	"github.com/utafrali/paycheckout/pkg/logger"
)

// railResult is one rail's line in the JSON summary.
type railResult struct {
	Rail    string          `json:"rail"`
	Outcome *domain.Outcome `json:"outcome,omitempty"`
	Alerts  []string        `json:"alerts,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// loadConfig reads the environment and applies the --backend override.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.BackendURL = strings.TrimRight(backend, "/")
	}
	return cfg, nil
}

// newCheckout builds the checkout with logs on stderr so stdout stays
// reserved for results.
func newCheckout(ctx context.Context, cmd *cobra.Command) (*app.Checkout, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	log := logger.NewWithWriter(app.CheckoutServiceName, cfg.LogLevel, cmd.ErrOrStderr())
	log.Info("starting checkout smoke run",
		slog.String("environment", cfg.Environment),
		slog.String("backend", cfg.BackendURL),
		slog.String("guard_backend", cfg.GuardBackend),
	)

	checkout, err := app.NewCheckout(ctx, cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize checkout: %w", err)
	}
	return checkout, log, nil
}

func runSmoke(cmd *cobra.Command, opts app.SmokeOptions, rails ...string) (err error) {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	checkout, log, err := newCheckout(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if shutdownErr := checkout.Shutdown(); shutdownErr != nil && err == nil {
			err = fmt.Errorf("shutdown: %w", shutdownErr)
		}
	}()

	if _, err := checkout.Preflight(ctx); err != nil {
		return err
	}

	results := make([]app.SmokeResult, 0, len(rails))
	for _, rail := range rails {
		var res app.SmokeResult
		switch rail {
		case app.SmokeCard:
			res = checkout.SmokeCard(ctx, opts)
		case app.SmokeButtons:
			res = checkout.SmokeButtons(ctx, opts)
		case app.SmokeWallet:
			res = checkout.SmokeWallet(ctx, opts)
		default:
			return fmt.Errorf("unknown rail %q", rail)
		}
		results = append(results, res)
		log.Info("smoke run finished",
			slog.String("rail", res.Rail),
			slog.String("kind", outcomeKind(res)),
		)
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if err := printResults(cmd.OutOrStdout(), results, asJSON); err != nil {
		return err
	}

	expect, _ := cmd.Flags().GetString("expect")
	return checkExpectation(results, expect)
}

func runPreflight(cmd *cobra.Command, _ []string) (err error) {
	checkout, _, err := newCheckout(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer func() {
		if shutdownErr := checkout.Shutdown(); shutdownErr != nil && err == nil {
			err = fmt.Errorf("shutdown: %w", shutdownErr)
		}
	}()

	resp, checkErr := checkout.Preflight(cmd.Context())

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}
	return checkErr
}

func printResults(w io.Writer, results []app.SmokeResult, asJSON bool) error {
	if asJSON {
		out := make([]railResult, 0, len(results))
		for _, res := range results {
			r := railResult{Rail: res.Rail, Outcome: res.Outcome, Alerts: res.Alerts}
			if res.Err != nil {
				r.Error = res.Err.Error()
			}
			out = append(out, r)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for _, res := range results {
		fmt.Fprintf(w, "%-8s %s\n", res.Rail, outcomeKind(res))
		if o := res.Outcome; o != nil {
			if o.OrderID != "" {
				fmt.Fprintf(w, "  order:   %s\n", o.OrderID)
			}
			if o.Transaction != nil {
				fmt.Fprintf(w, "  capture: %s %s\n", o.Transaction.Status, o.Transaction.ID)
			}
			if o.Issue != "" {
				fmt.Fprintf(w, "  issue:   %s (debug id %s)\n", o.Issue, o.DebugID)
			}
		}
		for _, alert := range res.Alerts {
			fmt.Fprintf(w, "  alert:   %s\n", alert)
		}
		if res.Err != nil {
			fmt.Fprintf(w, "  error:   %s\n", res.Err)
		}
	}
	return nil
}

func checkExpectation(results []app.SmokeResult, expect string) error {
	if expect == "" {
		return nil
	}
	for _, res := range results {
		if got := outcomeKind(res); got != expect {
			return fmt.Errorf("%s rail settled as %s, expected %s", res.Rail, got, expect)
		}
	}
	return nil
}

// outcomeKind names how a run ended. Runs refused before an attempt started
// have no outcome and report "refused".
func outcomeKind(res app.SmokeResult) string {
	if res.Outcome == nil {
		return "refused"
	}
	return string(res.Outcome.Kind)
}
