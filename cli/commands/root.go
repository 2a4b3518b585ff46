// Package commands provides the CLI command implementations for snapmink.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AshkanYarmoradi/go-snapmink/adapters"
	"github.com/AshkanYarmoradi/go-snapmink/cli/config"
	"github.com/AshkanYarmoradi/go-snapmink/cli/styles"
	"github.com/AshkanYarmoradi/go-snapmink/logging"
	"github.com/AshkanYarmoradi/go-snapmink/middleware/tracing"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Option configures the root command.
type Option func(*app)

// WithRegistry sets the aggregate types the rebuild command knows.
func WithRegistry(r *Registry) Option {
	return func(a *app) {
		a.registry = r
	}
}

// WithConfig uses cfg instead of searching for snapmink.yaml.
// Environment overrides still apply.
func WithConfig(cfg *config.Config) Option {
	return func(a *app) {
		a.config = cfg
	}
}

// WithBackends runs every command against the given adapters instead of
// the ones named in the configuration. The caller keeps ownership.
func WithBackends(events adapters.EventStoreAdapter, snapshots adapters.SnapshotAdapter) Option {
	return func(a *app) {
		a.backends = &Backends{Events: events, Snapshots: snapshots}
	}
}

type app struct {
	registry *Registry
	config   *config.Config
	backends *Backends

	configPath string
	noColor    bool
	trace      bool
}

// NewRootCommand creates the root command for the snapmink CLI
func NewRootCommand(opts ...Option) *cobra.Command {
	a := &app{registry: NewRegistry()}
	for _, opt := range opts {
		opt(a)
	}

	rootCmd := &cobra.Command{
		Use:   "snapmink",
		Short: "Snapshot maintenance for event-sourced aggregates",
		Long: styles.Title.Render("snapmink") + `

Inspect, rebuild and delete aggregate snapshots stored alongside an
event log.

` + styles.Title.Render("Quick Start:") + `

  ` + styles.Code.Render("snapmink migrate") + `                 Create the event and snapshot tables
  ` + styles.Code.Render("snapmink inspect Order-42") + `        Compare a stream with its snapshot
  ` + styles.Code.Render("snapmink rebuild Order 42 43") + `     Rebuild snapshots for two orders
  ` + styles.Code.Render("snapmink diagnose") + `                Check configuration and backends`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if a.noColor {
				styles.DisableColors()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to snapmink.yaml (default: search upwards from the working directory)")
	rootCmd.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&a.trace, "trace", false, "Print OpenTelemetry spans for backend calls to stderr")

	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(newMigrateCommand(a))
	rootCmd.AddCommand(newInspectCommand(a))
	rootCmd.AddCommand(newRebuildCommand(a))
	rootCmd.AddCommand(newSnapshotCommand(a))
	rootCmd.AddCommand(newDiagnoseCommand(a))
	rootCmd.AddCommand(NewVersionCommand(Version, Commit, BuildDate))

	return rootCmd
}

// Execute runs the root command
func Execute(opts ...Option) error {
	rootCmd := NewRootCommand(opts...)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styles.FormatError(err.Error()))
		return err
	}
	return nil
}

// loadConfig resolves configuration: explicit value, --config file,
// snapmink.yaml found upwards, or defaults; then environment overrides.
func (a *app) loadConfig() (*config.Config, error) {
	var cfg *config.Config

	switch {
	case a.config != nil:
		c := *a.config
		cfg = &c
	case a.configPath != "":
		c, err := config.LoadFile(a.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	default:
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		_, c, err := config.FindConfig(cwd)
		switch {
		case errors.Is(err, os.ErrNotExist):
			cfg = config.DefaultConfig()
		case err != nil:
			return nil, fmt.Errorf("load config: %w", err)
		default:
			cfg = c
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

// session is everything a command needs to talk to the backends.
type session struct {
	cfg      *config.Config
	logger   *logging.ZapLogger
	backends *Backends
	owned    bool
	shutdown func(context.Context) error
}

func (a *app) open(cmd *cobra.Command) (*session, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, logger: logger}
	ctx := cmd.Context()

	if a.backends != nil {
		s.backends = &Backends{Events: a.backends.Events, Snapshots: a.backends.Snapshots}
	} else {
		b, err := NewAdapterFactory(cfg, logger).Open(ctx)
		if err != nil {
			return nil, err
		}
		s.backends = b
		s.owned = true
	}

	if a.trace {
		tracer, shutdown, err := newStdoutTracer(ctx, cmd)
		if err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		s.shutdown = shutdown
		s.backends.Events = tracing.NewEventStoreMiddleware(s.backends.Events, tracer)
		s.backends.Snapshots = tracing.NewSnapshotStoreMiddleware(s.backends.Snapshots, tracer)
	}

	return s, nil
}

// Close flushes spans and releases backends the session created.
func (s *session) Close(ctx context.Context) error {
	var errs []error
	if s.shutdown != nil {
		errs = append(errs, s.shutdown(ctx))
	}
	if s.owned && s.backends != nil {
		errs = append(errs, s.backends.Close())
	}
	_ = s.logger.Sync()
	return errors.Join(errs...)
}

func newStdoutTracer(ctx context.Context, cmd *cobra.Command) (*tracing.Tracer, func(context.Context) error, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(cmd.ErrOrStderr()),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", "snapmink-cli"),
			attribute.String("service.version", Version),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
	)
	tracer := tracing.NewTracer(tracing.WithTracerProvider(tp), tracing.WithServiceName("snapmink-cli"))
	return tracer, tp.Shutdown, nil
}
