package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"finova/internal/charts"
	"finova/internal/cli"
	"finova/internal/core"
	"finova/internal/log"
	"finova/internal/mirror"
	"finova/internal/reconcile"
)

const usage = `finova-cli drives the record reconciliation client.

Usage:
  finova-cli submit  -kind <kind> -amount <n> [kind fields]
  finova-cli list    -kind <kind>
  finova-cli delete  -kind <kind> -id <server id>
  finova-cli refresh -kind <kind>
  finova-cli chart   -kind <kind> -out <file.png>

Kinds: budget, expense, investment, goal.
Owner comes from OWNER_EMAIL; the store from STORE_URL.
`

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentReconcile)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := cli.LoadAndValidateConfig(logger)

	repo, err := mirror.NewRepository(cfg.MirrorDir, logger)
	if err != nil {
		logger.Error("Failed to open mirror directory", log.FieldError, err, "dir", cfg.MirrorDir)
		os.Exit(1)
	}

	store := reconcile.NewClient(cfg.StoreURL, cfg.SubmitTimeout, logger)
	session := reconcile.NewSession(store, repo, core.OwnerID(cfg.OwnerEmail), logger)

	ctx := context.Background()
	var runErr error
	switch os.Args[1] {
	case "submit":
		runErr = runSubmit(ctx, session, os.Args[2:])
	case "list":
		runErr = runList(session, os.Args[2:])
	case "delete":
		runErr = runDelete(ctx, session, os.Args[2:])
	case "refresh":
		runErr = runRefresh(ctx, session, os.Args[2:])
	case "chart":
		runErr = runChart(session, os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if runErr != nil {
		fmt.Fprintln(os.Stderr, "error:", runErr)
		os.Exit(1)
	}
}

func parseKind(raw string) (core.Kind, error) {
	kind := core.Kind(raw)
	if !kind.Valid() {
		return "", fmt.Errorf("unknown kind %q (want budget, expense, investment, or goal)", raw)
	}
	return kind, nil
}

func runSubmit(ctx context.Context, session *reconcile.Session, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	kindFlag := fs.String("kind", "", "record kind")
	var form reconcile.FormFields
	fs.StringVar(&form.Amount, "amount", "", "amount (decimal)")
	fs.StringVar(&form.Source, "source", "", "budget source")
	fs.StringVar(&form.Reason, "reason", "", "expense reason")
	fs.StringVar(&form.Company, "company", "", "investment company")
	fs.StringVar(&form.Type, "type", "", "investment type")
	fs.StringVar(&form.Returns, "returns", "", "investment returns (decimal)")
	fs.StringVar(&form.Name, "name", "", "goal name")
	fs.StringVar(&form.Deadline, "deadline", "", "goal deadline (YYYY-MM-DD)")
	fs.StringVar(&form.Savings, "savings", "", "amount saved toward the goal (decimal)")
	fs.Parse(args)

	kind, err := parseKind(*kindFlag)
	if err != nil {
		return err
	}

	created, err := session.Submit(ctx, kind, form)
	if err != nil {
		return err
	}
	fmt.Printf("created %s %s (%s)\n", kind, created.ServerID, created.Amount.String())
	return nil
}

func runList(session *reconcile.Session, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	kindFlag := fs.String("kind", "", "record kind")
	fs.Parse(args)

	kind, err := parseKind(*kindFlag)
	if err != nil {
		return err
	}

	records := session.LoadMirror(kind)
	if len(records) == 0 {
		fmt.Printf("no %s records\n", kind)
		return nil
	}
	for _, rec := range records {
		fmt.Printf("%s  %s  %s  %s\n",
			rec.ServerID, rec.Date.Format("2006-01-02"), rec.Amount.String(), rec.KindField(kind))
	}
	return nil
}

func runDelete(ctx context.Context, session *reconcile.Session, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	kindFlag := fs.String("kind", "", "record kind")
	id := fs.String("id", "", "server id")
	fs.Parse(args)

	kind, err := parseKind(*kindFlag)
	if err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("missing -id")
	}

	session.LoadMirror(kind)
	if err := session.Delete(ctx, kind, *id, 0); err != nil {
		return err
	}
	fmt.Printf("deleted %s %s\n", kind, *id)
	return nil
}

func runRefresh(ctx context.Context, session *reconcile.Session, args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	kindFlag := fs.String("kind", "", "record kind")
	fs.Parse(args)

	kind, err := parseKind(*kindFlag)
	if err != nil {
		return err
	}

	records, err := session.Refresh(ctx, kind)
	if err != nil {
		return err
	}
	fmt.Printf("refreshed %s: %d records\n", kind, len(records))
	return nil
}

func runChart(session *reconcile.Session, args []string) error {
	fs := flag.NewFlagSet("chart", flag.ExitOnError)
	kindFlag := fs.String("kind", "", "record kind")
	out := fs.String("out", "", "output PNG path")
	fs.Parse(args)

	kind, err := parseKind(*kindFlag)
	if err != nil {
		return err
	}
	if *out == "" {
		*out = string(kind) + ".png"
	}

	records := session.LoadMirror(kind)
	png, err := charts.NewRenderer().Render(kind, charts.Points(records))
	if err != nil {
		return err
	}
	if png == nil {
		fmt.Printf("no %s records to chart\n", kind)
		return nil
	}
	if err := os.WriteFile(*out, png, 0644); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", *out, len(png))
	return nil
}
