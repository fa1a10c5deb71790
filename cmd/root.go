package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rollcall",
	Short: "Face recognition attendance for classrooms",
	Long: `Rollcall records classroom attendance from face photos. It matches
probe images against per-class rosters of enrolled face embeddings and
records each student present at most once per day, with manual override
for corrections.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
