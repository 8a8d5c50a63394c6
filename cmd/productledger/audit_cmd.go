package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/Mindburn-Labs/productledger/pkg/products"
)

func runAuditCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("audit", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	jsonOut := cmd.Bool("json", false, "Output the full trail as JSON")
	timeout := cmd.Duration("timeout", time.Minute, "Overall fetch timeout")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: productledger audit [--json] <tokenId>")
		return 2
	}
	id, err := products.ParseTokenID(cmd.Arg(0))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	cfg, err := loadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "startup: %v\n", err)
		return 1
	}
	defer a.Close()

	trail, err := a.coord.GetAuditTrail(ctx, id)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "audit %s: %v\n", id, err)
		return 1
	}
	if *jsonOut {
		return writeJSON(stdout, stderr, trail)
	}
	return printTrail(stdout, trail)
}

func printTrail(w io.Writer, trail *products.AuditTrail) int {
	_, _ = fmt.Fprintf(w, "token %s: %d entries\n", trail.TokenID, len(trail.Entries))
	for i, e := range trail.Entries {
		switch {
		case e.Err != nil:
			_, _ = fmt.Fprintf(w, "%3d  %s  UNAVAILABLE: %v\n", i+1, e.URL, e.Err)
		case e.Record.Event == nil:
			_, _ = fmt.Fprintf(w, "%3d  %s  %s  (no event)\n", i+1, e.Record.Operation, e.Record.TransactionHash)
		default:
			_, _ = fmt.Fprintf(w, "%3d  %s  %s  %s\n", i+1, e.Record.Event.Timestamp.UTC().Format(time.RFC3339), e.Record.Event.Action, e.Record.TransactionHash)
		}
	}
	if !trail.Complete() {
		return 1
	}
	return 0
}
