package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	gh "github.com/collabgraph/collabgraph-go/internal/github"
	"github.com/collabgraph/collabgraph-go/internal/graph"
)

var ingestGitHubCmd = &cobra.Command{
	Use:   "ingest-github",
	Short: "Ingest GitHub repositories into the collaboration graph",
	Long: `Ingest collaborators, teams, branches, commits, and pull requests for the
configured repositories into Neo4j.

The first run bootstraps from the configured lookback windows; later runs are
incremental from each repository's last_synced_at marker.

Examples:
  collabgraph ingest-github
  collabgraph ingest-github --owner myorg --repo service-a --repo service-b`,
	RunE: runIngestGitHub,
}

func init() {
	ingestGitHubCmd.Flags().String("owner", "", "repository owner (overrides config)")
	ingestGitHubCmd.Flags().StringSlice("repo", nil, "repository name to ingest; repeatable (default: all configured)")
}

func runIngestGitHub(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx := context.Background()

	if owner, _ := cmd.Flags().GetString("owner"); owner != "" {
		cfg.GitHub.Owner = owner
	}
	if repos, _ := cmd.Flags().GetStringSlice("repo"); len(repos) > 0 {
		cfg.GitHub.Repos = repos
	}

	if err := cfg.ValidateNeo4j(); err != nil {
		return err
	}
	if err := cfg.ValidateGitHub(); err != nil {
		return err
	}

	client, err := graph.NewClientWithDatabase(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, cfg.Neo4j.Database)
	if err != nil {
		return fmt.Errorf("neo4j connection failed: %w", err)
	}
	defer client.Close(ctx)

	if err := client.EnsureConstraints(ctx); err != nil {
		return fmt.Errorf("constraint setup failed: %w", err)
	}

	log := logger.WithField("run_id", uuid.NewString())
	store := graph.NewStore(client)
	pipeline := gh.NewPipeline(gh.NewClient(cfg.GitHub.Token, cfg.GitHub.RateLimit), store, gh.Options{
		CommitLookbackDays:  cfg.Sync.CommitLookbackDays,
		PRLookbackDays:      cfg.Sync.PRLookbackDays,
		IdentityRefreshDays: cfg.Identity.RefreshDays,
		BulkUserThreshold:   cfg.Sync.BulkUserThreshold,
		BranchIssuePatterns: cfg.GitHub.BranchIssuePatterns,
	}, log)

	if err := pipeline.Run(ctx, cfg.GitHub.Owner, cfg.GitHub.Repos); err != nil {
		return err
	}
	log.WithField("duration", time.Since(start).Round(time.Second).String()).Info("github ingestion complete")
	return nil
}
