// Package main implements the minutectl CLI for manual operations against
// the minuted daemon.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the minuted control surface
	serverURL string
	// version information
	version = "dev"
)

const requestTimeout = 30 * time.Second

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "minutectl",
	Short: "CLI for the minuted daemon",
	Long: `minutectl is a command-line interface for operating a running minuted daemon.
It starts and stops capture sessions and works the moderated approval queue.`,
	Version: version,
}

var statusOutputJSON bool

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9090", "minuted control surface URL")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusOutputJSON, "json", false, "Output results as JSON")
}

// healthCmd checks daemon health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check minuted daemon health",
	Long: `Check the health status of the minuted daemon.

Examples:
  # Check health
  minutectl health

  # Check health on a different port
  minutectl health --server http://localhost:9091`,
	RunE: runHealth,
}

// statusCmd shows the full daemon status
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Show the capture session state, the approval queue depth, and the
extraction buffer state of a running daemon.

Examples:
  # Show status
  minutectl status

  # Output as JSON
  minutectl status --json`,
	RunE: runStatus,
}

// HealthResponse matches internal/http/types.go HealthResponse
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse matches internal/http/types.go StatusResponse
type StatusResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Services   map[string]string `json:"services,omitempty"`
	Session    SessionStatus     `json:"session"`
	Approvals  ApprovalsStatus   `json:"approvals"`
	Extraction *ExtractionStats  `json:"extraction,omitempty"`
}

// SessionStatus matches internal/http/types.go SessionStatus
type SessionStatus struct {
	State     string `json:"state"`
	MeetingID string `json:"meetingId,omitempty"`
}

// ApprovalsStatus matches internal/http/types.go ApprovalsStatus
type ApprovalsStatus struct {
	Pending         int    `json:"pending"`
	ActivePendingID string `json:"activePendingId,omitempty"`
}

// ExtractionStats matches internal/extraction Stats
type ExtractionStats struct {
	Fragments       int       `json:"fragments"`
	HasIntentSignal bool      `json:"hasIntentSignal"`
	CallInFlight    bool      `json:"callInFlight"`
	LastCallAt      time.Time `json:"lastCallAt"`
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	var healthResp HealthResponse
	if err := api(http.MethodGet, "/healthz", nil, &healthResp); err != nil {
		return err
	}

	fmt.Printf("Daemon Status: %s\n", healthResp.Status)
	fmt.Printf("Server URL: %s\n", serverURL)

	return nil
}

// runStatus handles the status command
func runStatus(cmd *cobra.Command, args []string) error {
	var status StatusResponse
	if err := api(http.MethodGet, "/v1/status", nil, &status); err != nil {
		return err
	}

	if statusOutputJSON {
		return outputJSON(status)
	}

	fmt.Printf("Daemon: %s (version %s)\n", status.Status, status.Version)
	fmt.Printf("Session: %s", status.Session.State)
	if status.Session.MeetingID != "" {
		fmt.Printf(" (meeting %s)", status.Session.MeetingID)
	}
	fmt.Println()
	fmt.Printf("Pending approvals: %d\n", status.Approvals.Pending)
	if status.Approvals.ActivePendingID != "" {
		fmt.Printf("Active batch: %s\n", status.Approvals.ActivePendingID)
	}
	if status.Extraction != nil {
		fmt.Printf("Buffered fragments: %d\n", status.Extraction.Fragments)
		fmt.Printf("Intent signal: %t\n", status.Extraction.HasIntentSignal)
		if status.Extraction.CallInFlight {
			fmt.Println("Extraction call in flight")
		}
		if !status.Extraction.LastCallAt.IsZero() {
			fmt.Printf("Last extraction: %s\n", status.Extraction.LastCallAt.Format("2006-01-02 15:04:05"))
		}
	}
	for name, provider := range status.Services {
		fmt.Printf("Service %s: %s\n", name, provider)
	}

	return nil
}

// api performs one control-surface request. The response body is decoded
// into out when it is non-nil.
func api(method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	url := serverURL + path
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{
		Timeout: requestTimeout,
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Helper functions

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// formatAge renders the time since t as a compact single unit.
func formatAge(now, t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
