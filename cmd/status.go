package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/anthropic-openrouter-proxy/proxy/internal/process"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show proxy service status",
	Long:  `Display the current status of the translation proxy.`,
	Run:   runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) {
	procMgr := process.NewManager(baseDir)
	cfg := cfgMgr.Get()

	running := procMgr.IsRunning()
	pid := procMgr.ReadPID()

	fmt.Printf("\n%s status\n", AppName)
	fmt.Println("========================================")

	if running {
		color.Green("Status: running")
		fmt.Println("PID:", pid)
		fmt.Printf("Endpoint: http://%s:%d/v1/messages\n", cfg.Host, cfg.Port)
		fmt.Println("PID file:", procMgr.PIDFile())

		if cfg.OpenRouterKey == "" {
			color.Yellow("No server key configured; clients must bring their own OpenRouter key")
		}
	} else {
		color.Red("Status: not running")
		fmt.Println("\nStart with: aop start")
	}
}
