package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/medialib/internal/report"
	"github.com/franz/medialib/internal/store"
	"github.com/franz/medialib/internal/util"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check catalogue integrity",
	Long: `Run the store's integrity check and report files stuck in a failed
parser state. With --events, also summarise a JSONL event journal.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().String("events", "", "event journal to summarise")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))

	dbPath := viper.GetString("db")
	util.InfoLog("Checking %s (sqlite %s)", dbPath, store.SQLiteVersion())

	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	if err := s.CheckIntegrity(); err != nil {
		return err
	}
	util.SuccessLog("Integrity check passed")

	var fatal int
	if err := s.QueryRow(`SELECT COUNT(*) FROM files WHERE parser_step < 0 AND parser_step != -2`).
		Scan(&fatal); err != nil {
		return err
	}
	if fatal > 0 {
		util.WarnLog("%d files failed parsing permanently", fatal)
	} else {
		util.SuccessLog("No permanently failed files")
	}

	if eventsPath, _ := cmd.Flags().GetString("events"); eventsPath != "" {
		summary, err := report.Summarize(eventsPath)
		if err != nil {
			return err
		}
		summary.Print()
	}
	return nil
}
