package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/automation"
	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/spf13/cobra"
)

type cliOptions struct {
	server string
	token  string
}

func (o *cliOptions) client() (*apiClient, error) {
	if o.token == "" {
		return nil, errors.New("no token: pass --token or set POSTFLOW_TOKEN")
	}
	return newAPIClient(o.server, o.token), nil
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:          "postflowctl",
		Short:        "Operate the postflow scheduler and maintenance jobs",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.server, "server", envOr("POSTFLOW_SERVER", "http://localhost:3000"), "postflow server base URL")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("POSTFLOW_TOKEN"), "operator bearer token")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newStatusCmd(opts),
		newRetryFailedCmd(opts),
		newTriggerCmd(opts),
		newTokenCmd(),
	)
	return rootCmd
}

func newRunCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one scheduler tick now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			var resp struct {
				Message string                    `json:"message"`
				Status  automation.StatusSnapshot `json:"status"`
			}
			if err := client.do(cmd.Context(), http.MethodPost, "/api/automation/run", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			printStatus(cmd.OutOrStdout(), resp.Status)
			return nil
		},
	}
}

func newStatusCmd(opts *cliOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show scheduler counters and recent errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			var status automation.StatusSnapshot
			if err := client.do(cmd.Context(), http.MethodGet, "/api/automation/status", nil, &status); err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), status)
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status document")
	return cmd
}

func newRetryFailedCmd(opts *cliOptions) *cobra.Command {
	var subscriberID string
	cmd := &cobra.Command{
		Use:   "retry-failed",
		Short: "Reset failed posts to pending and dispatch them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			body := map[string]string{}
			if subscriberID != "" {
				body["subscriber_id"] = subscriberID
			}
			var summary automation.RetrySummary
			if err := client.do(cmd.Context(), http.MethodPost, "/api/automation/retry-failed", body, &summary); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset=%d posted=%d retrying=%d failed=%d\n",
				summary.Reset, summary.Posted, summary.Retrying, summary.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&subscriberID, "subscriber", "", "only retry this subscriber's posts")
	return cmd
}

func newTriggerCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger [job]",
		Short: "Run a maintenance job now (daily_content, weekly_report, billing_rollover, retention_cleanup)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			var resp struct {
				Message string `json:"message"`
				Job     string `json:"job"`
			}
			path := "/api/automation/jobs/" + url.PathEscape(args[0])
			if err := client.do(cmd.Context(), http.MethodPost, path, nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", resp.Message, resp.Job)
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with SECRET_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != utils.RoleOperator && role != utils.RoleSubscriber {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := utils.GenerateToken(config.LoadConfig().SecretKey, userID, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "operator", "subject of the token")
	cmd.Flags().StringVar(&role, "role", utils.RoleOperator, "operator or subscriber")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func printStatus(w io.Writer, s automation.StatusSnapshot) {
	lastRun := "never"
	if s.LastRunAt != nil {
		lastRun = s.LastRunAt.Format(time.RFC3339)
	}
	fmt.Fprintf(w, "running:   %t\n", s.IsRunning)
	fmt.Fprintf(w, "last run:  %s\n", lastRun)
	fmt.Fprintf(w, "processed: %d (ok %d, failed %d)\n", s.TotalProcessed, s.SuccessCount, s.FailureCount)
	for _, e := range s.RecentErrors {
		fmt.Fprintf(w, "  %s %s %s\n", e.Timestamp.Format(time.RFC3339), e.JobID, e.Message)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
