package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/collabgraph/collabgraph-go/internal/config"
)

// version is stamped via -ldflags at release time.
var version = "dev"

var (
	cfgFile string
	verbose bool
	logger  *logrus.Logger
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "collabgraph",
	Short: "Ingest code-host and issue-tracker activity into a collaboration graph",
	Long: `collabgraph pulls GitHub and Jira activity into a Neo4j property graph,
resolving accounts across both platforms into unified Person nodes.`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logrus.New()
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			logger.WithError(err).Warn("config load failed, using defaults")
			cfg = config.Default()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .collabgraph/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(ingestGitHubCmd, ingestJiraCmd, statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
