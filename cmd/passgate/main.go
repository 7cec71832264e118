// ABOUTME: Entry point for passgate, a passphrase gate in front of markdown routes
// ABOUTME: Subcommands serve content, check route auth, mint tokens and read the audit log

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/passgate/internal/auth"
	"github.com/2389/passgate/internal/config"
	"github.com/2389/passgate/internal/routes"
	"github.com/2389/passgate/internal/server"
	"github.com/2389/passgate/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _ __   __ _ ___ ___  __ _  __ _| |_ ___
 | '_ \ / _' / __/ __|/ _' |/ _' | __/ _ \
 | |_) | (_| \__ \__ \ (_| | (_| | ||  __/
 | .__/ \__,_|___/___/\__, |\__,_|\__\___|
 |_|                  |___/
`

// errCheckFailed signals that check found configuration errors.
var errCheckFailed = errors.New("route auth has errors")

// getConfigPath returns the path to the passgate config file.
// Priority: PASSGATE_CONFIG env var > XDG_CONFIG_HOME/passgate/config.yaml > ~/.config/passgate/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PASSGATE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "passgate", "config.yaml")
}

func usage() {
	fmt.Println("Usage: passgate <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                          Serve protected routes")
	fmt.Println("  check                          Report route auth problems")
	fmt.Println("  token ROUTE                    Mint a token for a route")
	fmt.Println("  audit [--route R] [--limit N]  Show recent auth decisions")
	fmt.Println("  health                         Check server health")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "check":
		err = runCheck(ctx)
	case "token":
		err = runToken(ctx, os.Args[2:])
	case "audit":
		err = runAudit(ctx, os.Args[2:])
	case "health":
		err = runHealth(ctx)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		if !errors.Is(err, errCheckFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// newAuthorizer builds the token codec and an authorizer loaded from the
// configured routes directory.
func newAuthorizer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*auth.Authorizer, *routes.Source, []auth.Diagnostic, error) {
	codec, err := auth.NewCodec([]byte(cfg.Auth.SecretKey))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating token codec: %w", err)
	}

	src, err := routes.NewDirSource(cfg.Routes.Dir, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening routes: %w", err)
	}

	authz := auth.NewAuthorizer(codec, auth.Config{
		BasePath: cfg.Server.BasePath,
		Realm:    cfg.Auth.Realm,
		Logger:   logger,
	})
	diags, err := authz.Load(ctx, src)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading route auth: %w", err)
	}
	return authz, src, diags, nil
}

// shadowedRoutes lists route directories that server endpoints hide.
func shadowedRoutes(ctx context.Context, src *routes.Source) ([]string, error) {
	records, err := src.AuthRecords(ctx)
	if err != nil {
		return nil, err
	}
	names, err := src.ContentRoutes(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		names = append(names, rec.Route)
	}
	return server.ShadowedRoutes(names), nil
}

func warnShadowed(ctx context.Context, src *routes.Source, logger *slog.Logger) {
	shadowed, err := shadowedRoutes(ctx, src)
	if err != nil {
		logger.Error("failed to list routes", "error", err)
		return
	}
	for _, r := range shadowed {
		logger.Warn("route name is taken by a server endpoint - route is not accessible", "route", r)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s%s\n", cfg.Server.HTTPAddr, cfg.Server.BasePath)
	green.Print("    ▶ ")
	fmt.Printf("Routes:    %s", cfg.Routes.Dir)
	if cfg.Routes.Watch {
		gray.Print(" (watching)")
	}
	fmt.Println()
	if cfg.Audit.DatabasePath != "" {
		green.Print("    ▶ ")
		fmt.Printf("Audit:     %s\n", cfg.Audit.DatabasePath)
	}
	fmt.Println()

	logger.Info("starting passgate",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"routes_dir", cfg.Routes.Dir,
	)

	authz, src, _, err := newAuthorizer(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var audit store.AuditStore
	if cfg.Audit.DatabasePath != "" {
		db, err := store.NewSQLiteStore(cfg.Audit.DatabasePath)
		if err != nil {
			return fmt.Errorf("opening audit store: %w", err)
		}
		defer db.Close()
		audit = db
	}

	warnShadowed(ctx, src, logger)

	reload := func(reason string) {
		logger.Info("reloading route auth", "reason", reason)
		if _, err := authz.Load(ctx, src); err != nil {
			logger.Error("reload failed, keeping previous registry", "error", err)
			return
		}
		warnShadowed(ctx, src, logger)
	}

	// SIGHUP rebuilds the registry from disk without restarting.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				reload("SIGHUP")
			}
		}
	}()

	if cfg.Routes.Watch {
		watcher, err := routes.NewWatcher(cfg.Routes.Dir, cfg.Routes.WatchDebounce, logger)
		if err != nil {
			return fmt.Errorf("watching routes: %w", err)
		}
		go func() {
			if err := watcher.Run(ctx, func() { reload("routes changed") }); err != nil {
				logger.Error("routes watcher stopped", "error", err)
			}
		}()
	}

	srv := server.New(server.Config{
		Addr:            cfg.Server.HTTPAddr,
		BasePath:        cfg.Server.BasePath,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, authz, src, audit, logger)

	return srv.Run(ctx)
}

func runCheck(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	authz, src, diags, err := newAuthorizer(ctx, cfg, discardLogger())
	if err != nil {
		return err
	}

	shadowed, err := shadowedRoutes(ctx, src)
	if err != nil {
		return fmt.Errorf("listing routes: %w", err)
	}
	for _, r := range shadowed {
		diags = append(diags, auth.Diagnostic{
			Severity: auth.SeverityError,
			Route:    r,
			Message:  "name is taken by a server endpoint - route is not accessible",
		})
	}

	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen)

	var errs int
	for _, d := range diags {
		if d.Severity == auth.SeverityError {
			errs++
			red.Print("  ✗ ")
		} else {
			yellow.Print("  ! ")
		}
		fmt.Println(d.String())
	}

	for _, e := range authz.Registry().Entries() {
		if slices.Contains(shadowed, e.Route) {
			continue
		}
		green.Print("  ✓ ")
		fmt.Printf("%-20s expires %s\n", e.Route, e.ExpiresAt.Format("Jan 02, 2006"))
	}

	if errs > 0 {
		fmt.Println()
		red.Printf("  %d error(s)\n", errs)
		return errCheckFailed
	}
	return nil
}

func runToken(ctx context.Context, args []string) error {
	if len(args) != 1 || strings.HasPrefix(args[0], "-") {
		return fmt.Errorf("usage: passgate token ROUTE")
	}
	route := args[0]

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	authz, _, _, err := newAuthorizer(ctx, cfg, discardLogger())
	if err != nil {
		return err
	}

	entry, ok := authz.Registry().EntryForRoute(route)
	if !ok {
		return fmt.Errorf("route %q has no usable auth record", route)
	}
	if entry.ExpiresAt.Before(time.Now()) {
		return fmt.Errorf("route %q expired on %s", route, entry.ExpiresAt.Format(time.RFC3339))
	}

	token, expires, err := authz.Codec().Issue(entry.Route, entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}

	fmt.Println(token)
	color.New(color.FgHiBlack).Fprintf(os.Stderr, "expires %s\n", expires.UTC().Format(time.RFC3339))
	return nil
}

func runAudit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	route := fs.String("route", "", "only show events for this route")
	limit := fs.Int("limit", 50, "maximum number of events")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Audit.DatabasePath == "" {
		return fmt.Errorf("audit.database_path is not configured")
	}

	db, err := store.NewSQLiteStore(cfg.Audit.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening audit store: %w", err)
	}
	defer db.Close()

	filter := store.AuthEventFilter{Limit: *limit}
	if *route != "" {
		filter.Route = route
	}

	events, err := db.ListAuthEvents(ctx, filter)
	if err != nil {
		return fmt.Errorf("listing auth events: %w", err)
	}

	gray := color.New(color.FgHiBlack)
	for _, e := range events {
		gray.Print(e.Timestamp.Local().Format("2006-01-02 15:04:05 "))
		if e.Outcome == store.OutcomeVerified {
			color.New(color.FgGreen).Print("OK   ")
		} else {
			color.New(color.FgRed).Print("FAIL ")
		}
		fmt.Printf("%-16s %-7s %-20s %s", e.Route, e.Scheme, e.User, e.RemoteAddr)
		if e.Message != "" {
			gray.Printf("  %s: %s", e.ErrorKind, e.Message)
		}
		fmt.Println()
	}
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s%shealth", cfg.Server.HTTPAddr, cfg.Server.BasePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}
