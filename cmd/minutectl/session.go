package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionStopCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the capture session",
	Long: `Manage the daemon's single capture session.

A daemon captures at most one meeting at a time. Starting a session opens
the audio source and the speech-to-text stream; stopping it drains the
pipeline and, if configured, reports meeting completion to the backend.

Examples:
  # Start capturing a meeting
  minutectl session start mtg_2024_standup

  # Stop the active capture
  minutectl session stop`,
}

var sessionStartCmd = &cobra.Command{
	Use:   "start <meeting-id>",
	Short: "Start capturing a meeting",
	Long: `Start capturing the given meeting.

Fails with a conflict when a session is already active, and with a bad
gateway error when the audio source or the speech-to-text stream cannot
be opened.

Examples:
  # Start capturing
  minutectl session start mtg_2024_standup`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionStart,
}

var sessionStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the active capture session",
	Long: `Stop the active capture session and drain the pipeline.

Fails with a conflict when no session is active.

Examples:
  # Stop capturing
  minutectl session stop`,
	RunE: runSessionStop,
}

// StartSessionRequest matches internal/http/types.go StartSessionRequest
type StartSessionRequest struct {
	MeetingID string `json:"meetingId"`
}

// SessionResponse matches internal/http/types.go SessionResponse
type SessionResponse struct {
	State     string `json:"state"`
	MeetingID string `json:"meetingId,omitempty"`
}

// runSessionStart handles the session start command
func runSessionStart(cmd *cobra.Command, args []string) error {
	req := StartSessionRequest{MeetingID: args[0]}

	var resp SessionResponse
	if err := api(http.MethodPost, "/v1/session/start", req, &resp); err != nil {
		return err
	}

	fmt.Printf("Session %s\n", resp.State)
	fmt.Printf("Meeting: %s\n", resp.MeetingID)

	return nil
}

// runSessionStop handles the session stop command
func runSessionStop(cmd *cobra.Command, args []string) error {
	var resp SessionResponse
	if err := api(http.MethodPost, "/v1/session/stop", nil, &resp); err != nil {
		return err
	}

	fmt.Printf("Session %s\n", resp.State)

	return nil
}
