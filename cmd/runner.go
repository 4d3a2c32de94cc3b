package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/airwave/internal/models"
	"github.com/desertthunder/airwave/internal/quota"
	"github.com/desertthunder/airwave/internal/ratelimit"
	"github.com/desertthunder/airwave/internal/repositories"
	"github.com/desertthunder/airwave/internal/retry"
	"github.com/desertthunder/airwave/internal/server"
	"github.com/desertthunder/airwave/internal/services"
	"github.com/desertthunder/airwave/internal/shared"
	"github.com/desertthunder/airwave/internal/tasks"
	"github.com/desertthunder/airwave/internal/vault"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *shared.Config
	Logger *log.Logger
	Output io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{config: opts.Config, logger: opts.Logger, output: opts.Output}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, syncCommand, connectCommand, enrichCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// deps is the wired object graph for one command invocation.
type deps struct {
	db         *sql.DB
	engine     *tasks.SyncEngine
	dispatcher *tasks.Dispatcher
	registry   *quota.Registry
	vault      *vault.Vault
}

func (d *deps) Close() {
	if d.db != nil {
		d.db.Close()
	}
}

// loadConfig swaps in the file at path when it exists.
func (r *Runner) loadConfig(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		return err
	}
	r.config = config
	return nil
}

// build opens the database and wires the engines from configuration.
func (r *Runner) build() (*deps, error) {
	cfg := r.config

	db, err := shared.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	d := &deps{db: db}

	source := services.NewSpinSource(cfg.Credentials.Spin.BaseURL, cfg.Credentials.Spin.APIKey, nil)
	d.engine = tasks.NewSyncEngine(source, repositories.NewSongRepository(db), repositories.NewStreamStatusRepository(db), tasks.SyncOptions{
		Policy:  r.policyFor("spin"),
		Timeout: cfg.Retry.Timeout(),
		Logger:  r.logger,
	})

	d.registry = quota.NewRegistry(quota.Options{
		StatusTTL: cfg.Cache.QuotaTTL(),
		Timeout:   cfg.Retry.Timeout(),
		Logger:    r.logger,
	})
	if cfg.Credentials.YouTube.APIKey != "" {
		d.registry.Register(services.NewYouTubeProvider(cfg.Credentials.YouTube.APIKey, "", nil), r.policyFor("youtube"))
	}
	if cfg.Credentials.Discogs.Token != "" {
		d.registry.Register(services.NewDiscogsProvider(cfg.Credentials.Discogs.Token, "", nil), r.policyFor("discogs"))
	}

	d.dispatcher = tasks.NewDispatcher(d.registry, repositories.NewEnrichmentRepository(db), tasks.DispatcherOptions{
		CacheTTL: cfg.Cache.EnrichmentTTL(),
		Logger:   r.logger,
	})

	if cfg.Credentials.Mixcloud.ClientID != "" && cfg.Credentials.Mixcloud.ClientSecret != "" {
		platform, err := services.NewMixcloudService(
			cfg.Credentials.Mixcloud.ClientID,
			cfg.Credentials.Mixcloud.ClientSecret,
			cfg.Credentials.Mixcloud.RedirectURI,
		)
		if err != nil {
			d.Close()
			return nil, err
		}

		d.vault = vault.New(platform,
			repositories.NewConnectionRepository(db),
			repositories.NewStateRepository(db),
			vault.Options{
				Policy:  r.policyFor("mixcloud"),
				Timeout: cfg.Retry.Timeout(),
				Logger:  r.logger,
			})
	}

	return d, nil
}

func (r *Runner) policyFor(provider string) retry.Policy {
	maxRetries, baseDelay, delayCap := r.config.Retry.For(provider)
	return retry.Policy{MaxRetries: maxRetries, BaseDelay: baseDelay, DelayCap: delayCap}
}

// Setup initializes the configuration file, database, and schema.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := shared.CreateConfigFile(configPath); err != nil {
			return err
		}
		r.writePlainln("Created %s", configPath)
	}

	if err := r.loadConfig(configPath); err != nil {
		return err
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RunMigrations(db); err != nil {
		return err
	}

	r.writePlainln("Database ready at %s", r.config.Database.Path)
	return nil
}

// Serve runs the HTTP surface with rate limiting, plus the scheduled sync loop.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.loadConfig(cmd.String("config")); err != nil {
		return err
	}

	d, err := r.build()
	if err != nil {
		return err
	}
	defer d.Close()

	limiter := ratelimit.NewLimiter()
	defer limiter.Close()

	router := server.NewBasicRouter()
	router.Use(
		server.LoggingMiddleware(r.logger),
		server.RateLimitMiddleware(limiter, r.config.Limits.Requests, r.config.Limits.Window()),
	)

	router.Handler(server.NewSyncHandler(d.engine, r.config.Sync.RecentHours, r.logger))
	router.Handler(server.NewEnrichHandler(d.dispatcher))
	if d.vault != nil {
		router.Handler(server.NewOAuthHandler(d.vault, r.logger))
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go d.engine.Watch(watchCtx, r.config.Credentials.Spin.Station, r.config.Sync.Interval(), r.config.Sync.RecentHours)

	addr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	r.logger.Info("listening", "addr", addr)

	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Sync runs one full sync, or a scheduled loop with --watch.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	if err := r.loadConfig(cmd.String("config")); err != nil {
		return err
	}

	d, err := r.build()
	if err != nil {
		return err
	}
	defer d.Close()

	station := cmd.String("station")
	if station == "" {
		station = r.config.Credentials.Spin.Station
	}

	hours := int(cmd.Int("hours"))
	if hours <= 0 {
		hours = r.config.Sync.RecentHours
	}

	if cmd.Bool("watch") {
		interval := time.Duration(cmd.Int("interval")) * time.Second
		if interval <= 0 {
			interval = r.config.Sync.Interval()
		}
		d.engine.Watch(ctx, station, interval, hours)
		return nil
	}

	result := d.engine.PerformFullSync(ctx, station, hours)
	if err := r.writeJSON(map[string]any{
		"station":   station,
		"succeeded": result.Succeeded(),
		"partial":   result.Partial(),
		"current":   result.CurrentSong,
		"recent":    len(result.RecentSongs),
	}, true); err != nil {
		return err
	}

	if !result.Succeeded() && !result.Partial() {
		return fmt.Errorf("sync failed for %s", station)
	}
	return nil
}

// Connect runs the local half of the authorization-code flow: start a
// callback listener, open the provider consent page, wait for the redirect.
func (r *Runner) Connect(ctx context.Context, cmd *cli.Command) error {
	if err := r.loadConfig(cmd.String("config")); err != nil {
		return err
	}

	d, err := r.build()
	if err != nil {
		return err
	}
	defer d.Close()

	if d.vault == nil {
		return fmt.Errorf("%w: mixcloud client_id and client_secret", shared.ErrMissingCredentials)
	}

	authURL, state, err := d.vault.BeginAuthorization()
	if err != nil {
		return err
	}

	redirect, err := url.Parse(r.config.Credentials.Mixcloud.RedirectURI)
	if err != nil {
		return fmt.Errorf("invalid redirect URI: %w", err)
	}

	user := cmd.String("user")
	result := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			result <- shared.ErrCsrfMismatch
			return
		}

		_, err := d.vault.CompleteAuthorization(req.Context(), user, req.URL.Query().Get("code"), req.URL.Query().Get("state"))
		if err != nil {
			http.Error(w, "authorization failed", http.StatusBadGateway)
			result <- err
			return
		}

		fmt.Fprintln(w, "Connected. You can close this window and return to the terminal.")
		result <- nil
	})

	srv := &http.Server{Addr: redirect.Host, Handler: mux}
	go srv.ListenAndServe()
	defer srv.Close()

	r.writePlainln("Opening browser for authorization...")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.writePlainln("Visit: %s", authURL)
	}

	select {
	case err := <-result:
		if err != nil {
			return err
		}
		r.writePlainln("Publishing platform connected for user %q", user)
		return nil
	case <-time.After(vault.StateTTL):
		return fmt.Errorf("%w: no callback received", shared.ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect revokes and deletes the stored connection.
func (r *Runner) Disconnect(ctx context.Context, cmd *cli.Command) error {
	if err := r.loadConfig(cmd.String("config")); err != nil {
		return err
	}

	d, err := r.build()
	if err != nil {
		return err
	}
	defer d.Close()

	if d.vault == nil {
		return fmt.Errorf("%w: mixcloud client_id and client_secret", shared.ErrMissingCredentials)
	}

	existed, err := d.vault.Disconnect(ctx, cmd.String("user"))
	if err != nil {
		return err
	}

	if existed {
		r.writePlainln("Disconnected")
	} else {
		r.writePlainln("No connection to remove")
	}
	return nil
}

// Status reports whether a usable connection exists.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	if err := r.loadConfig(cmd.String("config")); err != nil {
		return err
	}

	d, err := r.build()
	if err != nil {
		return err
	}
	defer d.Close()

	if d.vault == nil {
		return fmt.Errorf("%w: mixcloud client_id and client_secret", shared.ErrMissingCredentials)
	}

	connected, err := d.vault.Status(cmd.String("user"))
	if err != nil {
		return err
	}

	return r.writeJSON(map[string]bool{"connected": connected}, cmd.Bool("pretty"))
}

// Enrich queries all configured enrichment providers for a track.
func (r *Runner) Enrich(ctx context.Context, cmd *cli.Command) error {
	if err := r.loadConfig(cmd.String("config")); err != nil {
		return err
	}

	d, err := r.build()
	if err != nil {
		return err
	}
	defer d.Close()

	track := models.Track{Artist: cmd.String("artist"), Title: cmd.String("title")}
	result, err := d.dispatcher.Enrich(ctx, track)
	if err != nil {
		return err
	}

	return r.writeJSON(result, cmd.Bool("pretty"))
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	return nil
}

func (r *Runner) writePlainln(format string, args ...any) {
	fmt.Fprintf(r.output, format+"\n", args...)
}
