package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	clientws "github.com/dohr-michael/quotagate/clients/ws"
	wsprotocol "github.com/dohr-michael/quotagate/internal/gateway/ws"
)

// NewWatchCommand returns the watch subcommand: a live event stream from the
// gateway over WebSocket.
func NewWatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Stream gateway events to the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Gateway address",
				Value: "127.0.0.1:18520",
			},
			&cli.BoolFlag{
				Name:  "refresh",
				Usage: "Trigger a full refresh before streaming",
			},
		},
		Action: runWatch,
	}
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	url := "ws://" + cmd.String("addr") + "/api/ws"

	client, err := clientws.Dial(ctx, url)
	if err != nil {
		return fmt.Errorf("connect to gateway: %w", err)
	}
	defer client.Close()

	if cmd.Bool("refresh") {
		if err := client.Refresh("all", 0); err != nil {
			return fmt.Errorf("request refresh: %w", err)
		}
	}

	fmt.Println("watching gateway events (ctrl-c to exit)")
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}
		printFrame(frame)
	}
}

func printFrame(frame wsprotocol.Frame) {
	ts := time.Now().Format("15:04:05")
	switch frame.Type {
	case wsprotocol.FrameTypeEvent:
		fmt.Printf("%s  %-22s %s\n", ts, frame.Event, compactPayload(frame.Payload))
	case wsprotocol.FrameTypeResponse:
		if frame.OK != nil && !*frame.OK {
			fmt.Printf("%s  request %s failed: %s\n", ts, frame.ID, frame.Error)
		}
	}
}

// compactPayload renders the interesting part of an event payload on one line.
func compactPayload(raw json.RawMessage) string {
	var event struct {
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(raw, &event); err != nil || len(event.Payload) == 0 {
		return ""
	}
	data, err := json.Marshal(event.Payload)
	if err != nil {
		return ""
	}
	return string(data)
}
