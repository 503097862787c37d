package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cardperks/benefit-engine/catalog"
	"github.com/cardperks/benefit-engine/config"
	"github.com/cardperks/benefit-engine/cycle"
	"github.com/cardperks/benefit-engine/logging"
	"github.com/cardperks/benefit-engine/notify"
	"github.com/cardperks/benefit-engine/reminder"
	"github.com/cardperks/benefit-engine/store/sqlite"
)

type rootOptions struct {
	dbPath string
	asJSON bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "benefitctl",
		Short: "Credit card benefit cycle tool",
		Long: `benefitctl - compute benefit renewal cycles and operate the benefit tracker.

The database path defaults to DATABASE_PATH (or benefits.db).`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (default from DATABASE_PATH)")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "Print JSON instead of text")

	root.AddCommand(
		newPeriodCmd(opts),
		newSeedCmd(opts),
		newJobCmd(opts, reminder.JobCheckExpiring, "Send reminders for benefits inside their reminder window"),
		newJobCmd(opts, reminder.JobArchiveExpired, "Move ended, unfinished benefit cycles into history"),
	)
	return root
}

// =============================================================================
// PERIOD
// =============================================================================

type periodResult struct {
	Frequency         cycle.Frequency `json:"frequency"`
	Date              string          `json:"date"`
	Quarter           int             `json:"quarter"`
	PeriodEnd         string          `json:"period_end"`
	CycleLabel        string          `json:"cycle_label"`
	CurrentCycleLabel string          `json:"current_cycle_label,omitempty"`
}

func newPeriodCmd(root *rootOptions) *cobra.Command {
	var (
		frequency        string
		endMonth, endDay int
		date, lang       string
	)

	cmd := &cobra.Command{
		Use:     "period",
		Aliases: []string{"cycle"},
		Short:   "Show the period end and labels of a benefit schedule",
		Long: `Show the period end and labels of a benefit schedule.

Examples:
  benefitctl period --frequency MONTHLY
  benefitctl period --frequency YEARLY --end-month 6 --end-day 30 --lang en
  benefitctl period --frequency ONE_TIME --end-month 12 --end-day 31 --date 2024-03-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			freq, err := cycle.ParseFrequency(frequency)
			if err != nil {
				return err
			}
			now := time.Now()
			if date != "" {
				if now, err = time.Parse("2006-01-02", date); err != nil {
					return fmt.Errorf("invalid --date (use YYYY-MM-DD): %w", err)
				}
			}
			language := cycle.ParseLanguage(lang)

			res := periodResult{
				Frequency:  freq,
				Date:       now.Format("2006-01-02"),
				Quarter:    cycle.Quarter(int(now.Month())),
				PeriodEnd:  cycle.FormatDate(nil, language),
				CycleLabel: cycle.CycleLabel(freq, language),
			}
			if end, ok := cycle.PeriodEnd(freq, endMonth, endDay, now); ok {
				res.PeriodEnd = cycle.FormatDate(end, language)
			}
			if label, ok := cycle.CurrentCycleLabel(freq, language, now); ok {
				res.CurrentCycleLabel = label
			}

			if root.asJSON {
				return printJSON(cmd, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", res.CycleLabel, res.PeriodEnd)
			if res.CurrentCycleLabel != "" {
				fmt.Fprintln(cmd.OutOrStdout(), res.CurrentCycleLabel)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&frequency, "frequency", "f", "", "MONTHLY, QUARTERLY, YEARLY or ONE_TIME")
	cmd.Flags().IntVar(&endMonth, "end-month", 0, "End month (1-12) for YEARLY and ONE_TIME")
	cmd.Flags().IntVar(&endDay, "end-day", 0, "End day (1-31) for YEARLY and ONE_TIME")
	cmd.Flags().StringVar(&date, "date", "", "Reference date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&lang, "lang", string(cycle.DefaultLanguage), "Display language (zh-TW or en)")
	return cmd
}

// =============================================================================
// SEED
// =============================================================================

func newSeedCmd(root *rootOptions) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a card catalog into the database",
		Long: `Load a card catalog into the database. Without --catalog the built-in
catalog is used. Seeding is idempotent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cards := catalog.Default()
			if path != "" {
				var err error
				if cards, err = catalog.LoadFile(path); err != nil {
					return err
				}
			}

			store, _, err := root.open()
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := catalog.Seed(cmd.Context(), store, cards)
			if err != nil {
				return err
			}
			if root.asJSON {
				return printJSON(cmd, stats)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "SEEDED %d cards, %d benefits\n", stats.Cards, stats.Benefits)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "catalog", "c", "", "Catalog YAML file (default built-in)")
	return cmd
}

// =============================================================================
// JOBS
// =============================================================================

func newJobCmd(root *rootOptions, job, short string) *cobra.Command {
	return &cobra.Command{
		Use:   job,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := root.open()
			if err != nil {
				return err
			}
			defer store.Close()

			logger, err := logging.New(cfg.LogLevel, "console")
			if err != nil {
				return err
			}
			defer logger.Sync()

			svc := newReminderService(store, cfg, logger)

			var result any
			switch job {
			case reminder.JobCheckExpiring:
				result, err = svc.CheckExpiring(cmd.Context())
			default:
				result, err = svc.ArchiveExpired(cmd.Context())
			}
			if err != nil {
				return err
			}
			if root.asJSON {
				return printJSON(cmd, result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %+v\n", job, result)
			return nil
		},
	}
}

func newReminderService(store *sqlite.Store, cfg *config.Config, logger *zap.Logger) *reminder.Service {
	dispatcher := notify.NewDispatcher(logger.Named("notify"),
		notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramAPIURL),
		notify.NewLine(cfg.LineChannelToken, cfg.LineAPIURL),
		notify.NewEmail(cfg.SMTP),
	)
	return reminder.NewService(store, dispatcher, logger.Named("reminder"),
		reminder.WithLocation(cfg.Location()))
}

// =============================================================================
// HELPERS
// =============================================================================

// open loads configuration and opens the store, with --db taking
// precedence over DATABASE_PATH.
func (o *rootOptions) open() (*sqlite.Store, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	path := cfg.DatabasePath
	if o.dbPath != "" {
		path = o.dbPath
	}
	store, err := sqlite.New(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	return store, cfg, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
