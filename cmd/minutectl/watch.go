package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// watchInterval is the polling interval for periodic updates
	watchInterval time.Duration
	// watchOnce runs once and exits (for one-shot mode)
	watchOnce bool
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Second, "polling interval")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "run once and exit")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch daemon status",
	Long: `Print a compact status line on a fixed interval.

The line shows daemon health, the capture session state, the approval
queue depth, and the extraction buffer. Useful on a second terminal
while a meeting runs.

Examples:
  # Watch with the default 5s interval
  minutectl watch

  # Poll faster
  minutectl watch --interval 2s

  # One-shot mode (for scripts and prompt integrations)
  minutectl watch --once`,
	RunE: runWatch,
}

// runWatch handles the watch command
func runWatch(cmd *cobra.Command, args []string) error {
	if watchOnce {
		return outputWatchLine()
	}

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		if err := outputWatchLine(); err != nil {
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
			fmt.Println("\033[31m●\033[0m minuted unreachable")
		}
		<-ticker.C
	}
}

// outputWatchLine fetches status and prints one formatted line
func outputWatchLine() error {
	var status StatusResponse
	if err := api(http.MethodGet, "/v1/status", nil, &status); err != nil {
		return err
	}

	fmt.Println(formatWatchLine(&status))
	return nil
}

// formatWatchLine renders one compact status line
func formatWatchLine(status *StatusResponse) string {
	var parts []string

	parts = append(parts, healthDot(status))

	if status.Session.MeetingID != "" {
		parts = append(parts, fmt.Sprintf("session:%s %s", status.Session.State, status.Session.MeetingID))
	} else {
		parts = append(parts, "session:"+status.Session.State)
	}

	// The active batch carries a trailing marker so a glance tells a
	// waiting queue from an empty one.
	pending := fmt.Sprintf("pending:%d", status.Approvals.Pending)
	if status.Approvals.ActivePendingID != "" {
		pending += "*"
	}
	parts = append(parts, pending)

	if status.Extraction != nil {
		buf := fmt.Sprintf("buf:%d", status.Extraction.Fragments)
		if status.Extraction.HasIntentSignal {
			buf += "!"
		}
		if status.Extraction.CallInFlight {
			buf += " extracting"
		}
		parts = append(parts, buf)

		if !status.Extraction.LastCallAt.IsZero() {
			parts = append(parts, "last:"+status.Extraction.LastCallAt.Local().Format("15:04:05"))
		}
	}

	return strings.Join(parts, " │ ")
}

// healthDot returns the colored health indicator
func healthDot(status *StatusResponse) string {
	if status.Status != "ok" {
		return "\033[31m●\033[0m" // Red
	}
	if status.Session.State == "active" {
		return "\033[32m●\033[0m" // Green
	}
	return "●"
}
