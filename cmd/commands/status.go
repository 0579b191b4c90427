package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/quotagate/internal/config"
	"github.com/dohr-michael/quotagate/internal/heartbeat"
	"github.com/dohr-michael/quotagate/internal/orchestrator"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show quotagate gateway status",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Gateway address",
				Value: "127.0.0.1:18520",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			url := "http://" + cmd.String("addr") + "/api/refresh/status"

			client := &http.Client{Timeout: 5 * time.Second}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				// Fall back to the heartbeat file when the API is unreachable.
				hbPath := filepath.Join(config.QuotagatePath(), "heartbeat.json")
				status, hb, hbErr := heartbeat.Check(hbPath, 2*time.Minute)
				if hbErr != nil {
					return fmt.Errorf("check heartbeat: %w", hbErr)
				}
				switch status {
				case heartbeat.StatusAlive:
					fmt.Printf("Gateway: ALIVE but unreachable (PID %d, addr %s, uptime %s)\n", hb.PID, hb.Addr, hb.Uptime)
				case heartbeat.StatusStale:
					fmt.Printf("Gateway: STALE (PID %d, last heartbeat %s ago)\n",
						hb.PID, time.Since(hb.Timestamp).Truncate(time.Second))
				case heartbeat.StatusDead:
					fmt.Println("Gateway: NOT RUNNING")
				}
				return nil
			}
			defer resp.Body.Close()

			var snap orchestrator.Snapshot
			if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
				return fmt.Errorf("decode status: %w", err)
			}

			fmt.Printf("Status:  %s\n", snap.Status)
			if snap.RunID != "" {
				fmt.Printf("Run:     %s\n", snap.RunID)
				p := snap.Progress
				fmt.Printf("Progress: %d/%d (success %d, failed %d)\n", p.Completed, p.Total, p.Success, p.Failed)
			}
			fmt.Printf("Entries: %d", snap.Entries)
			if snap.Filter != "" {
				fmt.Printf(" (filter %s)", snap.Filter)
			}
			fmt.Println()
			if snap.Loading {
				fmt.Println("Listing: refreshing...")
			}
			return nil
		},
	}
}
