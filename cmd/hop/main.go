package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/stagehop/internal/util"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "hop",
		Short: "stagehop - migrate file collections through a staging store",
		Long: `hop moves large file collections from a primary store to a secondary
store through a portable staging store.

The pipeline has four stages, each run as a tracked job:
  scan   snapshot file metadata of a dataset
  diff   compare two scans by normalized path
  batch  select diff results into an ordered transfer plan
  copy   run the plan primary -> staging -> secondary

Every stage is recorded in a SQLite state database and can be re-run.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/hop.yaml)")
	rootCmd.PersistentFlags().String("db", "", "state database file (default $XDG_DATA_HOME/stagehop/state.db)")
	rootCmd.PersistentFlags().String("staging", "", "staging store mount point")
	rootCmd.PersistentFlags().String("artifacts", "artifacts", "directory for event logs and reports")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("staging", rootCmd.PersistentFlags().Lookup("staging"))
	viper.BindPFlag("artifacts", rootCmd.PersistentFlags().Lookup("artifacts"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("hop")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("HOP")
	viper.AutomaticEnv()

	err := viper.ReadInConfig()

	// levels come from flags, env and the file, so apply them after reading it
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))

	switch {
	case err == nil:
		util.DebugLog("Using config file: %s", viper.ConfigFileUsed())
	case cfgFile != "":
		util.WarnLog("Failed to read config file %s: %v", cfgFile, err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
