package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jask/jasksched/internal/config"
	"github.com/jask/jasksched/internal/database"
	"github.com/jask/jasksched/internal/events"
	"github.com/jask/jasksched/internal/recur"
	"github.com/jask/jasksched/internal/schedule"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Log.Level)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		log.Fatalf("mkdir db dir: %v", err)
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	svc := schedule.NewService(db, logger)
	adv := &schedule.Advancer{Service: svc, Notifier: &events.LogNotifier{Log: logger}}

	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "list":
		err = runList(ctx, svc)
	case "create":
		err = runCreate(ctx, svc, os.Args[2:])
	case "edit":
		err = runEdit(ctx, svc, os.Args[2:])
	case "skip":
		err = requireID(os.Args[2:], svc.SkipNextDate)(ctx)
	case "delete":
		err = requireID(os.Args[2:], svc.Delete)(ctx)
	case "post":
		err = requireID(os.Args[2:], svc.PostTransaction)(ctx)
	case "run":
		err = adv.Advance(ctx, true)
	case "discover":
		err = runDiscover(ctx, svc)
	case "upcoming":
		err = runUpcoming(ctx, svc, os.Args[2:])
	default:
		usage()
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func usage() {
	fmt.Println(`usage: jasksched <command>

commands:
  list                     show schedules with status
  create <request.json>    create a schedule from a request file
  edit <request.json>      update a schedule from a request file
  skip <id>                skip the current occurrence
  delete <id>              delete a schedule
  post <id>                post the schedule's transaction now
  run                      force one advancement cycle
  discover                 scan transactions for recurring patterns
  upcoming <config.json> [n]  preview upcoming dates for a recurrence config`)
}

func requireID(args []string, fn func(context.Context, string) error) func(context.Context) error {
	return func(ctx context.Context) error {
		if len(args) < 1 {
			return fmt.Errorf("schedule id required")
		}
		return fn(ctx, args[0])
	}
}

func runList(ctx context.Context, svc *schedule.Service) error {
	infos, err := svc.ListWithStatus(ctx)
	if err != nil {
		return err
	}
	for _, info := range infos {
		name := info.Schedule.ID
		if info.Schedule.Name != nil && *info.Schedule.Name != "" {
			name = *info.Schedule.Name
		}
		due := "-"
		if info.NextDue != nil {
			due = recur.FormatDate(*info.NextDue)
		}
		fmt.Printf("%-30s %-10s %-12s %10.2f\n", name, info.Status, due, float64(info.Amount)/100)
	}
	return nil
}

func runCreate(ctx context.Context, svc *schedule.Service, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("request file required")
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var req schedule.CreateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("parse request: %w", err)
	}
	id, err := svc.Create(ctx, req)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func runEdit(ctx context.Context, svc *schedule.Service, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("request file required")
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var req schedule.UpdateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("parse request: %w", err)
	}
	return svc.Update(ctx, req)
}

func runDiscover(ctx context.Context, svc *schedule.Service) error {
	candidates, err := svc.Discover(ctx)
	if err != nil {
		return err
	}
	for _, c := range candidates {
		fmt.Printf("payee=%s account=%s amount=%.2f %s/%d seen=%d\n",
			c.PayeeID, c.AccountID, float64(c.AmountCents)/100,
			c.Config.Frequency, c.Config.Interval, c.Occurrences)
	}
	return nil
}

func runUpcoming(ctx context.Context, svc *schedule.Service, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("config file required")
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var cfg recur.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	count := 10
	if len(args) > 1 {
		if _, err := fmt.Sscanf(args[1], "%d", &count); err != nil {
			return fmt.Errorf("parse count: %w", err)
		}
	}
	dates, err := svc.GetUpcomingDates(ctx, cfg, count)
	if err != nil {
		return err
	}
	for _, d := range dates {
		fmt.Println(d)
	}
	return nil
}
