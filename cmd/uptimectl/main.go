// Command uptimectl triggers the clock-driven endpoints of a running server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"uptimewatch/internal/client"
	"uptimewatch/internal/config"
	"uptimewatch/internal/log"
)

const usage = `usage: uptimectl [flags] <command>

commands:
  cron            sweep every target, archive inside the archive window
  archive         run an archival pass
  archive-status  show the archive backlog

flags:
`

func main() {
	server := flag.String("server", envOr("UPTIMEWATCH_URL", "http://localhost:8080"), "Server base URL")
	secret := flag.String("secret", "", "Cron secret (default $CRON_SECRET)")
	force := flag.Bool("force-archive", false, "Archive during cron regardless of time of day")
	asJSON := flag.Bool("json", false, "Print raw JSON")
	timeout := flag.Duration("timeout", 5*time.Minute, "Request timeout")
	retries := flag.Int("retries", 3, "Retries on transport errors")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatal().Err(err).Msg("Failed to load .env")
	}
	if *secret == "" {
		*secret = os.Getenv("CRON_SECRET")
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	c, err := client.New(*server, *secret, client.Options{RetryMax: *retries, Timeout: *timeout})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid client configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, c, flag.Arg(0), *force, *asJSON); err != nil {
		log.Fatal().Err(err).Str("command", flag.Arg(0)).Msg("Command failed")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func run(ctx context.Context, c *client.Client, command string, force, asJSON bool) error {
	switch command {
	case "cron":
		report, err := c.TriggerCron(ctx, force)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(report)
		}
		if report.Sweep != nil {
			fmt.Printf("Checked %s targets (%d failed, %d awaiting alternate check)\n",
				humanize.Comma(int64(report.Sweep.Checked)), report.Sweep.Failed, report.Sweep.PendingAlternate)
		}
		if report.SweepError != "" {
			fmt.Printf("Sweep failed: %s\n", report.SweepError)
		}
		switch {
		case report.Archive != nil:
			fmt.Printf("Archived %s records\n", humanize.Comma(int64(report.Archive.Archived)))
		case !report.ArchiveScheduled:
			fmt.Printf("Archive skipped, outside the archive window (%s)\n", report.LocalTime)
		}
		if report.ArchiveError != "" {
			fmt.Printf("Archive failed: %s\n", report.ArchiveError)
		}
		if !report.Success {
			return fmt.Errorf("cron run reported failures")
		}
		return nil

	case "archive":
		result, err := c.Archive(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(result)
		}
		fmt.Printf("Archived %s records\n", humanize.Comma(int64(result.Archived)))
		return nil

	case "archive-status":
		status, err := c.ArchiveStatus(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(status)
		}
		fmt.Printf("Records due for archival: %s\n", humanize.Comma(status.RecordsToArchive))
		fmt.Printf("Records archived:         %s\n", humanize.Comma(status.TotalArchived))
		return nil
	}
	return fmt.Errorf("unknown command %q", command)
}
