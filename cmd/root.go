package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/app"
	"github.com/JakeFAU/contact-harvester/internal/breaker"
	"github.com/JakeFAU/contact-harvester/internal/config"
	"github.com/JakeFAU/contact-harvester/internal/dispatcher"
	"github.com/JakeFAU/contact-harvester/internal/export"
	"github.com/JakeFAU/contact-harvester/internal/harvest"
	"github.com/JakeFAU/contact-harvester/internal/logging"
	"github.com/JakeFAU/contact-harvester/internal/storage/memory"
)

// Services is what the commands need from the application. *app.App satisfies it.
type Services interface {
	Run(ctx context.Context, maxRecords int) (dispatcher.Summary, error)
	DryRun(ctx context.Context, website, businessName string) (harvest.Result, error)
	ResetStatus(ctx context.Context) (int64, error)
	Store() harvest.AdminStore
	Breaker() *breaker.Breaker
	Exporter() (*export.Exporter, error)
	Logger() *zap.Logger
	Config() config.Config
	Close() error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...app.Option) (Services, error) {
	return app.New(ctx, cfg, logger, opts...)
}

// newLogger builds the process logger. It's a variable so tests can observe output.
var newLogger = func(cfg config.LoggingConfig) (*zap.Logger, error) {
	return logging.NewWithLevel(cfg.Development, cfg.Level)
}

// errRecordsFailed is returned by run when at least one record failed.
var errRecordsFailed = errors.New("one or more records failed")

// Command annotations.
const (
	annotationStore = "store"
	storeNone       = "none"
)

// flagKeys maps flags to the configuration keys they override when set.
var flagKeys = map[string]string{
	"log-level":   "logging.level",
	"store":       "store.driver",
	"dsn":         "store.dsn",
	"seed":        "store.seed_file",
	"concurrency": "harvest.concurrency",
	"max-records": "harvest.max_records",
	"headless":    "headless.headless",
	"render":      "headless.enabled",
	"port":        "server.port",
}

// cli carries state shared by the root command and its subcommands.
type cli struct {
	cfgFile string
	app     Services
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	logger := c.app.Logger()
	err := c.app.Close()
	// Sync fails on terminals; nothing useful can be done about it.
	_ = logger.Sync()
	c.app = nil
	return err
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Harvests contact emails and social profiles for business websites.",
		Long: `harvester visits the website of every pending business record, extracts
candidate email addresses and social profiles from the home page and its
contact pages, ranks the addresses and writes the result back to the store.`,
		SilenceUsage: true,

		// Runs after flags are parsed and before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.cfgFile, flagOverrides(cmd.Flags()))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := newLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			var opts []app.Option
			if cmd.Annotations[annotationStore] == storeNone {
				opts = append(opts, app.WithStore(memory.NewRecordStore()))
			}
			services, err := newApp(cmd.Context(), cfg, logger, opts...)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			c.app = services
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("store", "", "record store driver (postgres, sqlite, memory)")
	flags.String("dsn", "", "PostgreSQL connection string")
	flags.String("seed", "", "CSV file loaded into the memory store")

	cmd.AddCommand(
		newRunCmd(c),
		newResetStatusCmd(c),
		newListCmd(c),
		newStatsCmd(c),
		newTestURLCmd(c),
		newExportCmd(c),
		newServeCmd(c),
	)
	return cmd
}

// flagOverrides collects the configuration overrides of every flag set on the command line.
func flagOverrides(flags *pflag.FlagSet) map[string]any {
	out := map[string]any{}
	flags.Visit(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			out[key] = f.Value.String()
		}
	})
	return out
}

// execute runs the command line and closes the application services.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	c := &cli{}
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if cerr := c.close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command
// context; the process exits 1 when the command fails.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
