package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFilePath string
	logLevel       string
	logJSON        bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "transfersync",
		Short:        "Incrementally mirror remote SFTP folders into S3 on a schedule",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogging(opts)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configFilePath, "configfile", "", "Configuration File Path")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "Emit logs as JSON")

	cmd.AddCommand(
		newDaemonCommand(opts),
		newRunCommand(opts),
		newValidateCommand(opts),
		newWindowCommand(),
	)

	return cmd
}

func setupLogging(opts *rootOptions) error {
	level, err := log.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	if opts.logJSON {
		log.SetFormatter(&log.JSONFormatter{})
	}

	return nil
}

func loadConfig(opts *rootOptions) (AppConfig, error) {
	if opts.configFilePath == "" {
		return AppConfig{}, fmt.Errorf("Required flag --configfile not set but required")
	}

	return LoadConfig(opts.configFilePath)
}

func buildService(appConfig AppConfig) (*Service, error) {
	store, err := NewS3ObjectStore(appConfig)
	if err != nil {
		return nil, err
	}
	transferClient, err := NewAWSTransferClient(appConfig)
	if err != nil {
		return nil, err
	}

	var notifier Notifier
	if appConfig.Notify.ID != "" {
		if notifier, err = NewSNSNotifier(appConfig); err != nil {
			return nil, err
		}
	}

	return NewService(appConfig, store, transferClient, notifier, clockwork.NewRealClock()), nil
}

func newDaemonCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run every connector on its schedule until interrupted",
		RunE: func(_ *cobra.Command, _ []string) error {
			appConfig, err := loadConfig(opts)
			if err != nil {
				return err
			}
			for _, line := range appConfig.ConfigStringArray() {
				log.Info(line)
			}
			service, err := buildService(appConfig)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			scheduler := gocron.NewScheduler(time.UTC)
			if err := service.Schedule(ctx, scheduler, appConfig.Connectors); err != nil {
				return err
			}
			scheduler.StartAsync()
			<-ctx.Done()
			log.Info("Shutting down scheduler")
			scheduler.Stop()

			return nil
		},
	}
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	var scheduledAt string
	cmd := &cobra.Command{
		Use:   "run [connector-name...]",
		Short: "Run one firing now for the named connectors, or all of them",
		RunE: func(_ *cobra.Command, args []string) error {
			appConfig, err := loadConfig(opts)
			if err != nil {
				return err
			}
			var scheduled time.Time
			if scheduledAt != "" {
				if scheduled, err = time.Parse(time.RFC3339, scheduledAt); err != nil {
					return fmt.Errorf("invalid --scheduled-at: %w", err)
				}
			}

			connectors := appConfig.Connectors
			if len(args) > 0 {
				connectors = make([]ConnectorConfig, 0, len(args))
				for _, name := range args {
					conn, ok := appConfig.Connector(name)
					if !ok {
						return fmt.Errorf("unknown connector %q", name)
					}
					connectors = append(connectors, conn)
				}
			}

			service, err := buildService(appConfig)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			failed := 0
			for _, conn := range connectors {
				for _, result := range service.RunConnector(ctx, conn, scheduled) {
					if !result.Succeeded() {
						failed++
					}
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d sync settings failed", failed)
			}

			return nil
		},
	}
	cmd.Flags().StringVar(&scheduledAt, "scheduled-at", "", "RFC3339 firing time this run replays (default: latest firing)")

	return cmd
}

func newValidateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appConfig, err := loadConfig(opts)
			if err != nil {
				return err
			}
			for _, line := range appConfig.ConfigStringArray() {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}

			return nil
		},
	}
}

func newWindowCommand() *cobra.Command {
	var schedule, start, scheduledAt string
	cmd := &cobra.Command{
		Use:   "window",
		Short: "Print the instant after which files count as new for a run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := ParseSchedule(schedule)
			if err != nil {
				return err
			}
			startTime := time.Now().UTC()
			if start != "" {
				if startTime, err = time.Parse(time.RFC3339, start); err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
			}
			var scheduled time.Time
			if scheduledAt != "" {
				if scheduled, err = time.Parse(time.RFC3339, scheduledAt); err != nil {
					return fmt.Errorf("invalid --scheduled-at: %w", err)
				}
			}

			safe, err := SafeTimeCompareFor(parsed, scheduled, startTime)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), safe.Format(time.RFC3339))

			return nil
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", "Preset (@daily, ...) or six-field expression")
	cmd.Flags().StringVar(&start, "start", "", "RFC3339 run start (default: now)")
	cmd.Flags().StringVar(&scheduledAt, "scheduled-at", "", "RFC3339 firing time the run serves (default: latest firing)")
	_ = cmd.MarkFlagRequired("schedule")

	return cmd
}
