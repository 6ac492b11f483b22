package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tracker",
		Short: "Fleet Tracker - live asset position ingestion and fan-out",
		Long: `Ingests streaming GPS reports, keeps a bounded recent-history trail
per asset, derives each asset's activity status and pushes full-state
updates to websocket observers.`,
	}

	rootCmd.AddCommand(serverCmd())
	rootCmd.AddCommand(simulateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadDotenv() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using system environment variables")
	}
}
