package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/quotagate/internal/history"
)

// NewRunsCommand returns the runs subcommand.
func NewRunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List recent refresh runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Gateway address",
				Value: "127.0.0.1:18520",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to show",
				Value: 20,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			url := fmt.Sprintf("http://%s/api/runs?limit=%d", cmd.String("addr"), cmd.Int("limit"))

			client := &http.Client{Timeout: 5 * time.Second}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("gateway unreachable: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("gateway responded %s", resp.Status)
			}

			var runs []history.Record
			if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
				return fmt.Errorf("decode runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Println("no runs recorded")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSCOPE\tPROGRESS\tFAILED\tOUTCOME\tSTARTED")
			for _, r := range runs {
				outcome := "completed"
				switch {
				case r.FinishedAt.IsZero():
					outcome = "running"
				case r.Stopped:
					outcome = "stopped"
				}
				fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d\t%s\t%s\n",
					r.ID, r.Scope, r.Completed, r.Total, r.Failed, outcome,
					r.StartedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
}
