package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/dohr-michael/quotagate/internal/config"
	"github.com/dohr-michael/quotagate/internal/files"
	"github.com/dohr-michael/quotagate/internal/quota"
	"github.com/dohr-michael/quotagate/internal/refresh"
	"github.com/dohr-michael/quotagate/internal/remote"
)

// NewRefreshCommand returns the one-shot refresh subcommand. It talks to the
// management API directly, without a running gateway.
func NewRefreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Fetch quota for every entry and print the results",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "concurrency",
				Aliases: []string{"n"},
				Usage:   "Number of parallel quota fetches",
			},
			&cli.StringFlag{
				Name:  "filter",
				Usage: "Glob filter over entry names",
			},
			&cli.StringFlag{
				Name:  "targets",
				Usage: "YAML file listing entry names to refresh instead of the remote listing",
			},
		},
		Action: runRefresh,
	}
}

func runRefresh(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", configPath, err)
	}
	if cfg.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}

	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Token, cfg.Remote.Timeout.Duration())

	names, err := resolveTargets(ctx, cmd, cfg, client)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("no entries to refresh")
		return nil
	}

	concurrency := cfg.Refresh.Concurrency
	if cmd.IsSet("concurrency") {
		concurrency = int(cmd.Int("concurrency"))
	}

	store := quota.NewStore()
	sched := refresh.NewScheduler(store, client)

	sched.Run(ctx, names, refresh.ScopeAll, refresh.Options{
		Concurrency: concurrency,
		OnProgress: func(p refresh.Progress) {
			fmt.Fprintf(os.Stderr, "\rrefreshing %d/%d (failed %d)", p.Completed, p.Total, p.Failed)
		},
	})
	fmt.Fprintln(os.Stderr)

	printResults(store.Snapshot(), names)
	return nil
}

// resolveTargets picks the entry names: an explicit targets file wins over
// the remote listing.
func resolveTargets(ctx context.Context, cmd *cli.Command, cfg *config.Config, client *remote.Client) ([]string, error) {
	if path := cmd.String("targets"); path != "" {
		return loadTargetsFile(path)
	}

	source := files.NewSource(client, nil, 0)
	filter := cfg.Refresh.Filter
	if cmd.IsSet("filter") {
		filter = cmd.String("filter")
	}
	if filter != "" {
		source.SetFilter(filter)
	}
	if err := source.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return source.Names(), nil
}

func loadTargetsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}
	var doc struct {
		Targets []string `yaml:"targets"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse targets %s: %w", path, err)
	}
	return doc.Targets, nil
}

func printResults(results map[string]quota.Result, names []string) {
	sorted := append([]string{}, names...)
	sort.Strings(sorted)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATE\tUSED\tTOTAL\tOBJECTS\tERROR")
	for _, name := range sorted {
		r, ok := results[name]
		if !ok {
			continue
		}
		switch r.State {
		case quota.StateSuccess:
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t\n", name, r.State, r.Usage.Used, r.Usage.Total, r.Usage.Objects)
		default:
			fmt.Fprintf(w, "%s\t%s\t\t\t\t%s\n", name, r.State, r.Error)
		}
	}
	w.Flush()
}
