package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	secops "github.com/emeryray2002/mcp-secops-v3"
	"github.com/emeryray2002/mcp-secops-v3/chronicle"
	"github.com/emeryray2002/mcp-secops-v3/internal/loggingutil"
	"github.com/emeryray2002/mcp-secops-v3/mcp"
)

// toolkit is the subset of mcp.Toolkit the examples drive.
type toolkit interface {
	SearchSecurityEvents(ctx context.Context, in mcp.SearchEventsInput) (mcp.SearchEventsResult, error)
	GetSecurityAlerts(ctx context.Context, in mcp.AlertsInput) (mcp.AlertsResult, error)
	LookupEntity(ctx context.Context, in mcp.LookupEntityInput) (mcp.EntityResult, error)
	ListSecurityRules(ctx context.Context, in mcp.ListRulesInput) (mcp.RulesResult, error)
	GetIoCMatches(ctx context.Context, in mcp.IoCMatchesInput) (mcp.IoCResult, error)
}

// openFunc builds the toolkit and returns a release function.
type openFunc func(ctx context.Context, logger pslog.Logger) (toolkit, func(), error)

func openRuntimeToolkit(ctx context.Context, logger pslog.Logger) (toolkit, func(), error) {
	rt, err := secops.Open(ctx, secops.DefaultConfig(), secops.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := rt.Close(context.Background()); err != nil {
			logger.Warn("runtime close failed", "error", err)
		}
	}
	return rt.Toolkit(), release, nil
}

func submain(ctx context.Context) int {
	baseLogger := loggingutil.ProcessLogger(os.Stderr, "secops-example")
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd := newRootCommand(baseLogger, openRuntimeToolkit, os.LookupEnv)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			loggingutil.WithSubsystem(baseLogger, "example").Error("examples failed", "error", err)
		}
		return 1
	}
	return 0
}

func newRootCommand(baseLogger pslog.Logger, open openFunc, lookup func(string) (string, bool)) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:           "secops-example",
		Short:         "Run the Security Operations MCP examples against Chronicle",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := baseLogger
			if verbose {
				logger = loggingutil.ApplyLevel(baseLogger, "debug")
			}
			logger = loggingutil.WithSubsystem(logger, "example")
			inst := chronicle.InstanceFromEnv(lookup)
			logger.Debug("instance resolved", "project_id", inst.ProjectID, "customer_id", inst.CustomerID, "region", inst.Region)

			tk, release, err := open(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer release()
			return runExamples(cmd.Context(), tk, inst, cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Show more detailed output")
	return cmd
}

// runExamples performs the five calls in order, printing each result to out.
func runExamples(ctx context.Context, tk toolkit, inst chronicle.Instance, out io.Writer, logger pslog.Logger) error {
	logger = loggingutil.EnsureLogger(logger)
	fmt.Fprint(out, "\n=== Chronicle Security API Examples ===\n\n")

	fmt.Fprintln(out, "Example 1: Search for network connection events (using environment defaults)")
	events, err := tk.SearchSecurityEvents(ctx, mcp.SearchEventsInput{
		Query:     `metadata.event_type = "NETWORK_CONNECTION"`,
		HoursBack: 24,
		MaxEvents: 5,
	})
	if err != nil {
		return fmt.Errorf("search security events: %w", err)
	}
	logger.Debug("search returned", "total_events", events.TotalEvents, "events", len(events.Events))
	renderEvents(out, events)

	fmt.Fprintln(out, "\nExample 2: Get security alerts (with explicit parameters)")
	alerts, err := tk.GetSecurityAlerts(ctx, mcp.AlertsInput{
		ProjectID:  inst.ProjectID,
		CustomerID: inst.CustomerID,
		Region:     inst.Region,
		HoursBack:  24,
		MaxAlerts:  5,
	})
	if err != nil {
		return fmt.Errorf("get security alerts: %w", err)
	}
	if err := renderJSON(out, alerts); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nExample 3: Look up an entity (using environment defaults)")
	entity, err := tk.LookupEntity(ctx, mcp.LookupEntityInput{EntityValue: "8.8.8.8"})
	if err != nil {
		return fmt.Errorf("lookup entity: %w", err)
	}
	if err := renderJSON(out, entity); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nExample 4: List security rules (using environment defaults)")
	rules, err := tk.ListSecurityRules(ctx, mcp.ListRulesInput{})
	if err != nil {
		return fmt.Errorf("list security rules: %w", err)
	}
	if err := renderJSON(out, rules); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nExample 5: Get IoC matches (using environment defaults)")
	iocs, err := tk.GetIoCMatches(ctx, mcp.IoCMatchesInput{HoursBack: 24, MaxMatches: 5})
	if err != nil {
		return fmt.Errorf("get ioc matches: %w", err)
	}
	return renderJSON(out, iocs)
}
