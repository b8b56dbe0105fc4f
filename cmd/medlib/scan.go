package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/medialib/internal/medialib"
	"github.com/franz/medialib/internal/util"
	"github.com/franz/medialib/internal/vfs"
)

var scanCmd = &cobra.Command{
	Use:   "scan [directory]",
	Short: "Index a directory tree into the catalogue",
	Long: `Register the directory as an entry point, discover its media files and
run them through the parser pipeline. Re-running on an unchanged tree is
cheap: files already parsed are skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().Duration("drain-timeout", 30*time.Minute, "maximum time to wait for parsing")
	viper.BindPFlag("drain-timeout", scanCmd.Flags().Lookup("drain-timeout"))
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	var bar *progressbar.ProgressBar
	isTTY := util.IsTerminal(os.Stdout.Fd())
	if isTTY && !viper.GetBool("quiet") {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Parsing"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}

	discoveryDone := make(chan struct{}, 8)

	lib := medialib.New(libraryConfig(), medialib.Callbacks{
		OnDiscoveryStarted: func(entryPoint string) {
			util.InfoLog("Discovering %s", entryPoint)
		},
		OnDiscoveryCompleted: func(entryPoint string) {
			select {
			case discoveryDone <- struct{}{}:
			default:
			}
		},
		OnParsingStatsUpdated: func(done, scheduled uint32) {
			if bar != nil {
				bar.ChangeMax(int(scheduled))
				bar.Set(int(done))
			}
		},
	})
	if err := lib.Initialize(); err != nil {
		return err
	}
	defer lib.Close()

	if len(args) == 1 {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", abs)
		}
		if err := lib.AddEntryPoint(vfs.ToMrl(abs)); err != nil {
			return fmt.Errorf("failed to add entry point: %w", err)
		}
	} else {
		lib.Reload()
	}

	timeout := viper.GetDuration("drain-timeout")

	// discovery feeds the pipeline; wait for it to finish one pass
	// before waiting for the parse drain
	select {
	case <-discoveryDone:
	case <-time.After(timeout):
		util.WarnLog("Discovery did not finish before the timeout; progress is saved")
	}
	if !lib.WaitIdle(timeout) {
		util.WarnLog("Parsing did not finish before the timeout; progress is saved")
	}

	if bar != nil {
		bar.Finish()
	}
	util.SuccessLog("Scan complete")
	return nil
}
