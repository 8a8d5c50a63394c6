package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Mindburn-Labs/productledger/pkg/reconcile"
)

func runReconcileCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		once     bool
		release  string
		list     bool
		interval time.Duration
		jsonOut  bool
	)
	cmd.BoolVar(&once, "once", false, "Run a single pass and exit")
	cmd.StringVar(&release, "release", "", "Move a BLOCKED or FAILED entry back to PENDING")
	cmd.BoolVar(&list, "list", false, "List all queue entries")
	cmd.DurationVar(&interval, "interval", 0, "Pass interval (default RECONCILE_INTERVAL)")
	cmd.BoolVar(&jsonOut, "json", false, "Output as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if interval <= 0 {
		interval = cfg.ReconcileInterval
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "startup: %v\n", err)
		return 1
	}
	defer a.Close()

	switch {
	case release != "":
		if err := reconcile.Release(ctx, a.queue, release); err != nil {
			_, _ = fmt.Fprintf(stderr, "release %s: %v\n", release, err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "released %s\n", release)
		return 0
	case list:
		entries, err := a.queue.ListAll(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "list: %v\n", err)
			return 1
		}
		return printEntries(stdout, entries, jsonOut)
	case once:
		sum, err := a.worker.RunOnce(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "reconcile: %v\n", err)
			return 1
		}
		if jsonOut {
			return writeJSON(stdout, stderr, sum)
		}
		_, _ = fmt.Fprintf(stdout, "scanned=%d completed=%d retried=%d blocked=%d failed=%d skipped=%d\n",
			sum.Scanned, sum.Completed, sum.Retried, sum.Blocked, sum.Failed, sum.Skipped)
		return 0
	default:
		if err := a.worker.Run(ctx, interval); err != nil && ctx.Err() == nil {
			_, _ = fmt.Fprintf(stderr, "reconcile: %v\n", err)
			return 1
		}
		return 0
	}
}

func printEntries(w io.Writer, entries []reconcile.Entry, jsonOut bool) int {
	if jsonOut {
		return writeJSON(w, w, entries)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tOPERATION\tSTATE\tRETRIES\tREASON")
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", e.ID, e.Operation, e.State, e.RetryCount, e.Reason)
	}
	_ = tw.Flush()
	return 0
}

func writeJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_, _ = fmt.Fprintf(stderr, "encode: %v\n", err)
		return 1
	}
	return 0
}
