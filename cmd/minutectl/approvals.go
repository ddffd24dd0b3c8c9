package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/minutedhq/minuted/internal/backend"
)

var (
	// approvals command flags
	apTaskIndex  int
	apReason     string
	apOutputJSON bool
)

func init() {
	rootCmd.AddCommand(approvalsCmd)
	approvalsCmd.AddCommand(approvalsListCmd)
	approvalsCmd.AddCommand(approvalsShowCmd)
	approvalsCmd.AddCommand(approvalsApproveCmd)
	approvalsCmd.AddCommand(approvalsRejectCmd)
	approvalsCmd.AddCommand(approvalsSnoozeCmd)
	approvalsCmd.AddCommand(approvalsResyncCmd)

	approvalsCmd.PersistentFlags().BoolVar(&apOutputJSON, "json", false, "Output results as JSON")

	approvalsApproveCmd.Flags().IntVar(&apTaskIndex, "task", -1, "Approve a single task by index instead of the whole batch")
	approvalsRejectCmd.Flags().IntVar(&apTaskIndex, "task", -1, "Reject a single task by index instead of the whole batch")
	approvalsRejectCmd.Flags().StringVar(&apReason, "reason", "", "Rejection reason recorded with the decision")
}

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Work the approval queue",
	Long: `Work the moderated approval queue of a running daemon.

Detected tasks arrive as pending batches. Moderators approve or reject
whole batches or single tasks; decided batches leave the queue and the
next one becomes active.

Examples:
  # List pending batches
  minutectl approvals list

  # Inspect one batch
  minutectl approvals show pend_abc123

  # Approve the whole batch
  minutectl approvals approve pend_abc123

  # Reject one task with a reason
  minutectl approvals reject pend_abc123 --task 2 --reason "duplicate"`,
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending approval batches",
	Long: `List pending approval batches in queue order.

Examples:
  # List pending batches
  minutectl approvals list

  # Output as JSON
  minutectl approvals list --json`,
	RunE: runApprovalsList,
}

var approvalsShowCmd = &cobra.Command{
	Use:   "show <pending-id>",
	Short: "Show one batch with task indexes",
	Long: `Show one pending batch with its tasks and their indexes.

Task indexes feed the --task flag of approve and reject.

Examples:
  # Inspect a batch
  minutectl approvals show pend_abc123`,
	Args: cobra.ExactArgs(1),
	RunE: runApprovalsShow,
}

var approvalsApproveCmd = &cobra.Command{
	Use:   "approve <pending-id>",
	Short: "Approve a batch or a single task",
	Long: `Approve a pending batch, or a single task of it with --task.

Approved tasks become real tasks on the backend and the batch leaves the
queue once fully decided.

Examples:
  # Approve the whole batch
  minutectl approvals approve pend_abc123

  # Approve only task 0
  minutectl approvals approve pend_abc123 --task 0`,
	Args: cobra.ExactArgs(1),
	RunE: runApprovalsApprove,
}

var approvalsRejectCmd = &cobra.Command{
	Use:   "reject <pending-id>",
	Short: "Reject a batch or a single task",
	Long: `Reject a pending batch, or a single task of it with --task.

Examples:
  # Reject the whole batch
  minutectl approvals reject pend_abc123 --reason "not actionable"

  # Reject only task 1
  minutectl approvals reject pend_abc123 --task 1 --reason "duplicate"`,
	Args: cobra.ExactArgs(1),
	RunE: runApprovalsReject,
}

var approvalsSnoozeCmd = &cobra.Command{
	Use:   "snooze",
	Short: "Snooze approval notifications",
	Long: `Snooze approval notifications for the daemon's configured window.

Pending batches stay queued; only the nagging pauses.

Examples:
  # Snooze notifications
  minutectl approvals snooze`,
	RunE: runApprovalsSnooze,
}

var approvalsResyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Resync the queue from the backend",
	Long: `Force an immediate queue resync from the backend.

Useful after network trouble or when a push event may have been missed.

Examples:
  # Resync now
  minutectl approvals resync`,
	RunE: runApprovalsResync,
}

// ApprovalsResponse matches internal/http/types.go ApprovalsResponse
type ApprovalsResponse struct {
	Approvals []backend.PendingApprovalBatch `json:"approvals"`
	Active    *backend.PendingApprovalBatch  `json:"active,omitempty"`
}

// RejectRequest matches internal/http/types.go RejectRequest
type RejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ActionResponse matches internal/http/types.go ActionResponse
type ActionResponse struct {
	Status string `json:"status"`
}

// SnoozeResponse matches internal/http/types.go SnoozeResponse
type SnoozeResponse struct {
	SnoozedUntil time.Time `json:"snoozedUntil"`
}

// ResyncResponse matches internal/http/types.go ResyncResponse
type ResyncResponse struct {
	Status  string `json:"status"`
	Pending int    `json:"pending"`
}

// runApprovalsList handles the approvals list command
func runApprovalsList(cmd *cobra.Command, args []string) error {
	var resp ApprovalsResponse
	if err := api(http.MethodGet, "/v1/approvals", nil, &resp); err != nil {
		return err
	}

	if apOutputJSON {
		return outputJSON(resp)
	}

	if len(resp.Approvals) == 0 {
		fmt.Println("No pending approvals")
		return nil
	}

	activeID := ""
	if resp.Active != nil {
		activeID = resp.Active.PendingID
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PENDING ID\tMEETING\tTASKS\tAGE\tSUMMARY")
	for _, batch := range resp.Approvals {
		id := batch.PendingID
		if id == activeID {
			id = "* " + id
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			truncate(id, 24),
			truncate(batch.MeetingID, 20),
			len(batch.Tasks),
			formatAge(now, batch.CreatedAt),
			truncate(batch.Summary, 40),
		)
	}
	w.Flush()

	return nil
}

// runApprovalsShow handles the approvals show command
func runApprovalsShow(cmd *cobra.Command, args []string) error {
	pendingID := args[0]

	var resp ApprovalsResponse
	if err := api(http.MethodGet, "/v1/approvals", nil, &resp); err != nil {
		return err
	}

	var batch *backend.PendingApprovalBatch
	for i := range resp.Approvals {
		if resp.Approvals[i].PendingID == pendingID {
			batch = &resp.Approvals[i]
			break
		}
	}
	if batch == nil {
		return fmt.Errorf("no pending batch %s (run: minutectl approvals list)", pendingID)
	}

	if apOutputJSON {
		return outputJSON(batch)
	}

	fmt.Printf("Batch: %s\n", batch.PendingID)
	fmt.Printf("Meeting: %s\n", batch.MeetingID)
	fmt.Printf("Created: %s\n", batch.CreatedAt.Format("2006-01-02 15:04:05"))
	if batch.Summary != "" {
		fmt.Printf("Summary: %s\n", batch.Summary)
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTITLE\tASSIGNEE\tPRIORITY\tDEADLINE\tCONF")
	for i, task := range batch.Tasks {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%.2f\n",
			i,
			truncate(task.Title, 40),
			truncate(task.Assignee, 16),
			task.Priority,
			deadlineLabel(task.Deadline),
			task.Confidence,
		)
	}
	w.Flush()

	return nil
}

// runApprovalsApprove handles the approvals approve command
func runApprovalsApprove(cmd *cobra.Command, args []string) error {
	pendingID := args[0]

	path := approvalActionPath(pendingID, apTaskIndex, "approve")

	var resp ActionResponse
	if err := api(http.MethodPost, path, nil, &resp); err != nil {
		return err
	}

	if apTaskIndex >= 0 {
		fmt.Printf("Approved task %d of %s\n", apTaskIndex, pendingID)
	} else {
		fmt.Printf("Approved batch %s\n", pendingID)
	}

	return nil
}

// runApprovalsReject handles the approvals reject command
func runApprovalsReject(cmd *cobra.Command, args []string) error {
	pendingID := args[0]

	path := approvalActionPath(pendingID, apTaskIndex, "reject")
	req := RejectRequest{Reason: apReason}

	var resp ActionResponse
	if err := api(http.MethodPost, path, req, &resp); err != nil {
		return err
	}

	if apTaskIndex >= 0 {
		fmt.Printf("Rejected task %d of %s\n", apTaskIndex, pendingID)
	} else {
		fmt.Printf("Rejected batch %s\n", pendingID)
	}

	return nil
}

// runApprovalsSnooze handles the approvals snooze command
func runApprovalsSnooze(cmd *cobra.Command, args []string) error {
	var resp SnoozeResponse
	if err := api(http.MethodPost, "/v1/approvals/snooze", nil, &resp); err != nil {
		return err
	}

	fmt.Printf("Snoozed until %s\n", resp.SnoozedUntil.Local().Format("15:04:05"))

	return nil
}

// runApprovalsResync handles the approvals resync command
func runApprovalsResync(cmd *cobra.Command, args []string) error {
	var resp ResyncResponse
	if err := api(http.MethodPost, "/v1/approvals/resync", nil, &resp); err != nil {
		return err
	}

	fmt.Printf("Resynced, %d pending batch(es)\n", resp.Pending)

	return nil
}

// approvalActionPath builds the batch-level or task-level action path.
func approvalActionPath(pendingID string, taskIndex int, action string) string {
	if taskIndex >= 0 {
		return fmt.Sprintf("/v1/approvals/%s/tasks/%d/%s", url.PathEscape(pendingID), taskIndex, action)
	}
	return fmt.Sprintf("/v1/approvals/%s/%s", url.PathEscape(pendingID), action)
}

// deadlineLabel renders an optional ISO deadline for table output.
func deadlineLabel(d *string) string {
	if d == nil || *d == "" {
		return "-"
	}
	return *d
}
