package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/forcesync/internal/project"
	"github.com/openmined/forcesync/internal/utils"
	"github.com/openmined/forcesync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _          = os.UserHomeDir()
	defaultConfigDir = filepath.Join(home, ".forcesync")
	configFileName   = "config"
	logFileName      = "forcesync.log"
)

type cli struct {
	v       *viper.Viper
	console slog.Handler
	// closed in order after the command ran
	closers []io.Closer
}

func newCLI() *cli {
	return &cli{v: viper.New()}
}

func (c *cli) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "forcesync",
		Short:         "Sync a local source folder with a remote metadata store",
		Version:       version.Detailed(),
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := c.loadConfig(cmd); err != nil {
				return err
			}
			return c.setupLogging(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.close()
		},
	}

	flags := cmd.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("root", "r", project.DefaultRoot, "project root folder")
	flags.StringP("config", "c", "", "credentials config file (default ~/.forcesync/config.json)")
	flags.String("remote", remoteHTTP, "remote backend: http or s3")
	flags.StringP("server", "s", "", "gateway URL of the http remote")
	flags.String("bucket", "", "bucket of the s3 remote")
	flags.String("prefix", "", "key prefix inside the bucket")
	flags.String("region", "", "region of the s3 remote")
	flags.String("endpoint", "", "endpoint of an s3 compatible store")
	flags.String("api-version", "", "API version sent to the remote")
	flags.BoolP("verbose", "v", false, "log debug messages")

	cmd.AddCommand(
		newInitCmd(c),
		newPushCmd(c),
		newPullCmd(c),
		newStatusCmd(c),
		newResetCmd(c),
		newHistoryCmd(c),
		newVersionCmd(),
	)
	return cmd
}

func main() {
	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := newCLI()
	err := c.command().ExecuteContext(ctx)
	// post run hooks are skipped when a command fails
	c.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", red.Render("ERROR"), err)
		os.Exit(1)
	}
}

func (c *cli) loadConfig(cmd *cobra.Command) error {
	// .env in the working directory fills the environment, never overriding it
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	v := c.v
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(defaultConfigDir)
		v.AddConfigPath(filepath.Join(home, ".config", "forcesync"))
		v.SetConfigName(configFileName)
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	flags := cmd.Flags()
	v.BindPFlag("root", flags.Lookup("root"))
	v.BindPFlag("remote", flags.Lookup("remote"))
	v.BindPFlag("server_url", flags.Lookup("server"))
	v.BindPFlag("bucket", flags.Lookup("bucket"))
	v.BindPFlag("prefix", flags.Lookup("prefix"))
	v.BindPFlag("region", flags.Lookup("region"))
	v.BindPFlag("endpoint", flags.Lookup("endpoint"))
	v.BindPFlag("api_version", flags.Lookup("api-version"))
	v.BindPFlag("verbose", flags.Lookup("verbose"))

	v.SetEnvPrefix("FORCESYNC")
	v.AutomaticEnv()

	// names used by earlier tooling, checked after ours
	v.BindEnv("username", "FORCESYNC_USERNAME", "SF_USER")
	v.BindEnv("password", "FORCESYNC_PASSWORD", "SF_PASSWORD")
	v.BindEnv("token", "FORCESYNC_TOKEN", "SF_TOKEN")
	v.BindEnv("server_url", "FORCESYNC_SERVER_URL", "SF_HOST")

	return nil
}

// setupLogging logs to the console and to a file, the project's logs folder
// when the project exists, else ~/.forcesync/logs.
func (c *cli) setupLogging(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if c.v.GetBool("verbose") {
		level = slog.LevelDebug
	}

	// stdout carries command output
	consoleHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	c.console = consoleHandler

	logDir := filepath.Join(defaultConfigDir, "logs")
	if p, err := project.New(c.v.GetString("root"), nil); err == nil && !p.IsNew() {
		logDir = p.LogsDir
	}

	if err := utils.EnsureDir(logDir); err != nil {
		slog.SetDefault(slog.New(consoleHandler))
		slog.Warn("file logging disabled", "error", err)
		return nil
	}

	file, err := os.OpenFile(filepath.Join(logDir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.SetDefault(slog.New(consoleHandler))
		slog.Warn("file logging disabled", "error", err)
		return nil
	}
	interceptor := utils.NewLogInterceptor(file)
	c.closers = append(c.closers, interceptor, file)

	fileHandler := slog.NewTextHandler(interceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// Do not include time as it is added by the log interceptor.
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(consoleHandler, fileHandler)))
	slog.Debug("forcesync", "version", version.Short(), "command", cmd.Name())
	return nil
}

func (c *cli) close() error {
	var errs []error
	for _, closer := range c.closers {
		errs = append(errs, closer.Close())
	}
	c.closers = nil
	if c.console != nil {
		slog.SetDefault(slog.New(c.console))
	}
	return errors.Join(errs...)
}
