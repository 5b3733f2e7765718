package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/collabgraph/collabgraph-go/internal/graph"
	"github.com/collabgraph/collabgraph-go/internal/jira"
)

var ingestJiraCmd = &cobra.Command{
	Use:   "ingest-jira",
	Short: "Ingest Jira projects into the collaboration graph",
	Long: `Ingest epics, issues, and sprints for the configured Jira projects into
Neo4j. People are resolved into the same Person nodes the GitHub ingestion
writes, keyed by email where available.

Examples:
  collabgraph ingest-jira
  collabgraph ingest-jira --project PLAT --project CORE`,
	RunE: runIngestJira,
}

func init() {
	ingestJiraCmd.Flags().StringSlice("project", nil, "project key to ingest; repeatable (default: all configured)")
}

func runIngestJira(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx := context.Background()

	if projects, _ := cmd.Flags().GetStringSlice("project"); len(projects) > 0 {
		cfg.Jira.Projects = projects
	}

	if err := cfg.ValidateNeo4j(); err != nil {
		return err
	}
	if err := cfg.ValidateJira(); err != nil {
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

	jc, err := jira.NewClient(ctx, cfg.Jira.BaseURL, cfg.Jira.Email, cfg.Jira.APIToken)
	if err != nil {
		return err
	}

	log := logger.WithField("run_id", uuid.NewString())
	store := graph.NewStore(client)
	pipeline := jira.NewPipeline(jc, store, cfg.Jira.BaseURL, jira.Options{
		Projects:          cfg.Jira.Projects,
		EpicLookbackDays:  cfg.Sync.EpicLookbackDays,
		IssueLookbackDays: cfg.Sync.IssueLookbackDays,
		EpicTeamField:     cfg.Jira.EpicTeamField,
	}, log)

	if err := pipeline.Run(ctx); err != nil {
		return err
	}
	log.WithField("duration", time.Since(start).Round(time.Second).String()).Info("jira ingestion complete")
	return nil
}
