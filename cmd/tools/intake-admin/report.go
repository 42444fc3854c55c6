package main

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"service-intake/internal/analyzer"
	"service-intake/internal/audit"
	commonaws "service-intake/internal/common/aws"
	"service-intake/internal/common/database"
	"service-intake/internal/notify"
)

var (
	reportFormat string
	reportDays   int
	reportEmail  bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Analyze recent failures and print the improvement report",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", "text", "output format: text or json")
	reportCmd.Flags().IntVar(&reportDays, "days", 0, "analysis window in days (defaults to pipeline.analysis_window_days)")
	reportCmd.Flags().BoolVar(&reportEmail, "email", false, "send the text report to the configured recipients")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()

	days := reportDays
	if days <= 0 {
		days = cfg.Pipeline.AnalysisWindowDays
	}

	report, err := analyzer.New(audit.NewPostgresSink(pg.DB), time.Duration(days)*24*time.Hour, log).Run(ctx)
	if err != nil {
		return fmt.Errorf("running analysis: %w", err)
	}

	if err := report.Write(os.Stdout, reportFormat); err != nil {
		return err
	}

	if !reportEmail {
		return nil
	}
	if !cfg.Notifications.Report.Enabled {
		return fmt.Errorf("report notifications are disabled in the configuration")
	}

	sesClient, err := commonaws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
	if err != nil {
		return fmt.Errorf("creating SES client: %w", err)
	}
	var body bytes.Buffer
	if err := report.Write(&body, "text"); err != nil {
		return err
	}
	subject := fmt.Sprintf("Rapport intake %s (score %.1f/10)", report.GeneratedAt.Format("2006-01-02"), report.Score)
	return notify.NewSESReporter(sesClient, cfg.Notifications.Report.FromEmail, cfg.Notifications.Report.To, log).
		SendReport(ctx, subject, body.String())
}
