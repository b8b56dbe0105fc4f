package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/medialib/internal/medialib"
	"github.com/franz/medialib/internal/util"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "medlib",
		Short: "Embedded media library - index and browse your media collection",
		Long: `medlib maintains a relational catalogue of the media files on this
machine. It discovers audio and video files under configured entry
points, extracts their metadata through a staged parser pipeline and
keeps albums, artists, genres, shows and playlists queryable, including
across removable-device unmounts.`,
		Version: Version,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/medlib.yaml)")
	rootCmd.PersistentFlags().String("db", "medlib.db", "catalogue database file")
	rootCmd.PersistentFlags().String("thumbnails", "thumbnails", "thumbnail output directory")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("thumbnails", rootCmd.PersistentFlags().Lookup("thumbnails"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("medlib")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MEDLIB")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

// libraryConfig assembles the library configuration from viper
func libraryConfig() medialib.Config {
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))

	return medialib.Config{
		DBPath:         viper.GetString("db"),
		ThumbnailPath:  viper.GetString("thumbnails"),
		ProbeTimeout:   time.Duration(cast.ToInt64(viper.Get("probe_timeout_ms"))) * time.Millisecond,
		ParserRetryMax: viper.GetInt("parser_retry_max"),
		StageQueueCap:  viper.GetInt("stage_queue_cap"),
		StmtCacheSize:  viper.GetInt("stmt_cache_size"),
	}
}

// openLibrary initialises the library for query-style commands
func openLibrary() (*medialib.MediaLibrary, error) {
	lib := medialib.New(libraryConfig(), medialib.Callbacks{})
	if err := lib.Initialize(); err != nil {
		return nil, err
	}
	return lib, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
