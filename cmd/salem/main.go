package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "salem",
	Short: "Multi-tenant conversational commerce bot",
	Long:  "Salem runs Telegram and WhatsApp sales bots for multiple businesses from one process.",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
