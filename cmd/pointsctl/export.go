package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/PaIIermo/DIP-compass-gamification/scoring"
	"github.com/PaIIermo/DIP-compass-gamification/storage"
)

var exportDate string

func init() {
	exportCmd.Flags().StringVar(&exportDate, "date", "", "snapshot date (YYYY-MM-DD), default today")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Upload the snapshots of one date to S3 and rotate old exports",
	RunE: func(cmd *cobra.Command, args []string) error {
		date := scoring.Midnight(time.Now())
		if exportDate != "" {
			d, err := time.Parse("2006-01-02", exportDate)
			if err != nil {
				return fmt.Errorf("--date: %w", err)
			}
			date = d
		}

		e, err := setup()
		if err != nil {
			return err
		}
		defer e.log.Sync()

		if e.cfg.S3Bucket == "" || e.cfg.S3URL == "" {
			return fmt.Errorf("S3_BUCKET and S3_URL are required for export")
		}
		client, err := storage.NewS3Client(e.cfg)
		if err != nil {
			return fmt.Errorf("s3 client: %w", err)
		}
		exp := storage.NewExporter(e.db, client, e.cfg.S3Bucket, e.cfg.ExportKeep, e.log)
		keys, err := exp.Export(cmd.Context(), date)
		if perr := printJSON(map[string]any{"date": scoring.DateKey(date), "keys": keys}); perr != nil {
			return perr
		}
		return err
	},
}
