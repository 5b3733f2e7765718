package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/collabgraph/collabgraph-go/internal/graph"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show graph node counts and unresolved cross-pipeline stubs",
	Long: `Show per-label node counts plus the number of Issue and Team stubs created
by one pipeline but not yet enriched by the authoritative one. A persistent
stub count usually means the other side has not been ingested yet.`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if err := cfg.ValidateNeo4j(); err != nil {
		return err
	}

	client, err := graph.NewClientWithDatabase(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, cfg.Neo4j.Database)
	if err != nil {
		return fmt.Errorf("neo4j connection failed: %w", err)
	}
	defer client.Close(ctx)

	store := graph.NewStore(client)

	nodes, err := store.NodeCounts(ctx)
	if err != nil {
		return err
	}
	stubs, err := store.StubCounts(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Graph nodes:\n")
	printCounts(nodes)

	fmt.Printf("\nUnenriched reference stubs:\n")
	if len(stubs) == 0 {
		fmt.Printf("  (none)\n")
	} else {
		printCounts(stubs)
	}
	return nil
}

func printCounts(counts map[string]int) {
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Printf("  %-14s %d\n", label, counts[label])
	}
}
