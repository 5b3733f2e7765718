package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings. Components never read
// configuration directly; the CLI loads this once per run and passes values
// in as plain parameters.
type Config struct {
	// Graph store connection
	Neo4j Neo4jConfig `yaml:"neo4j" mapstructure:"neo4j"`

	// Code-hosting platform
	GitHub GitHubConfig `yaml:"github" mapstructure:"github"`

	// Issue-tracking platform
	Jira JiraConfig `yaml:"jira" mapstructure:"jira"`

	// Identity resolution settings
	Identity IdentityConfig `yaml:"identity" mapstructure:"identity"`

	// Fetch-window and batching settings
	Sync SyncConfig `yaml:"sync" mapstructure:"sync"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri" mapstructure:"uri"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

type GitHubConfig struct {
	Token string `yaml:"token" mapstructure:"token"`
	Owner string `yaml:"owner" mapstructure:"owner"`
	// Repositories to ingest, by name. Empty means all repositories owned
	// by Owner.
	Repos     []string `yaml:"repos" mapstructure:"repos"`
	RateLimit int      `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second
	// Override patterns for extracting issue keys from branch names. Each
	// pattern must contain exactly one capture group.
	BranchIssuePatterns []string `yaml:"branch_issue_patterns" mapstructure:"branch_issue_patterns"`
}

type JiraConfig struct {
	BaseURL  string   `yaml:"base_url" mapstructure:"base_url"`
	Email    string   `yaml:"email" mapstructure:"email"`
	APIToken string   `yaml:"api_token" mapstructure:"api_token"`
	Projects []string `yaml:"projects" mapstructure:"projects"`
	// Custom field name holding the owning team on epics.
	EpicTeamField string `yaml:"epic_team_field" mapstructure:"epic_team_field"`
}

type IdentityConfig struct {
	// Days before an IdentityMapping's profile fields are refreshed again.
	RefreshDays int `yaml:"refresh_days" mapstructure:"refresh_days"`
}

type SyncConfig struct {
	// First-run bootstrap lookback windows, per entity kind.
	CommitLookbackDays int `yaml:"commit_lookback_days" mapstructure:"commit_lookback_days"`
	PRLookbackDays     int `yaml:"pr_lookback_days" mapstructure:"pr_lookback_days"`
	IssueLookbackDays  int `yaml:"issue_lookback_days" mapstructure:"issue_lookback_days"`
	EpicLookbackDays   int `yaml:"epic_lookback_days" mapstructure:"epic_lookback_days"`
	// Distinct-user count above which identity freshness lookups switch
	// from per-user queries to one batched query.
	BulkUserThreshold int `yaml:"bulk_user_threshold" mapstructure:"bulk_user_threshold"`
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Neo4j: Neo4jConfig{
			URI:      "bolt://localhost:7687",
			User:     "neo4j",
			Database: "neo4j",
		},
		GitHub: GitHubConfig{
			RateLimit: 10,
		},
		Jira: JiraConfig{
			EpicTeamField: "Team",
		},
		Identity: IdentityConfig{
			RefreshDays: 7,
		},
		Sync: SyncConfig{
			CommitLookbackDays: 60,
			PRLookbackDays:     60,
			IssueLookbackDays:  60,
			EpicLookbackDays:   90,
			BulkUserThreshold:  20,
		},
	}
}

// Load loads configuration from file, environment, and .env files.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("neo4j", cfg.Neo4j)
	v.SetDefault("github", cfg.GitHub)
	v.SetDefault("jira", cfg.Jira)
	v.SetDefault("identity", cfg.Identity)
	v.SetDefault("sync", cfg.Sync)

	v.SetEnvPrefix("COLLABGRAPH")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".collabgraph")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".collabgraph"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file is fine, defaults + env apply.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence.
func loadEnvFiles() {
	envFiles := []string{
		".env.local",
		".env",
	}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".collabgraph", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides. Environment
// always wins over config-file values, so CI runs need no file at all.
func applyEnvOverrides(cfg *Config) {
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Neo4j.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.Neo4j.User = user
	}
	if password := os.Getenv("NEO4J_PASSWORD"); password != "" {
		cfg.Neo4j.Password = password
	}
	if db := os.Getenv("NEO4J_DATABASE"); db != "" {
		cfg.Neo4j.Database = db
	}

	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		cfg.GitHub.Token = token
	}
	if owner := os.Getenv("GITHUB_OWNER"); owner != "" {
		cfg.GitHub.Owner = owner
	}
	if rateLimit := os.Getenv("GITHUB_RATE_LIMIT"); rateLimit != "" {
		if rate, err := strconv.Atoi(rateLimit); err == nil {
			cfg.GitHub.RateLimit = rate
		}
	}

	if url := os.Getenv("JIRA_URL"); url != "" {
		cfg.Jira.BaseURL = url
	}
	if email := os.Getenv("JIRA_EMAIL"); email != "" {
		cfg.Jira.Email = email
	}
	if token := os.Getenv("JIRA_API_TOKEN"); token != "" {
		cfg.Jira.APIToken = token
	}
	if field := os.Getenv("JIRA_EPIC_TEAM_FIELD"); field != "" {
		cfg.Jira.EpicTeamField = field
	}

	if days := os.Getenv("IDENTITY_REFRESH_DAYS"); days != "" {
		if d, err := strconv.Atoi(days); err == nil {
			cfg.Identity.RefreshDays = d
		}
	}
	if days := os.Getenv("SYNC_LOOKBACK_DAYS"); days != "" {
		if d, err := strconv.Atoi(days); err == nil {
			cfg.Sync.CommitLookbackDays = d
			cfg.Sync.PRLookbackDays = d
			cfg.Sync.IssueLookbackDays = d
		}
	}
}

// ValidateNeo4j checks the graph-store connection settings.
func (c *Config) ValidateNeo4j() error {
	missing := []string{}
	if c.Neo4j.URI == "" {
		missing = append(missing, "NEO4J_URI")
	}
	if c.Neo4j.User == "" {
		missing = append(missing, "NEO4J_USER")
	}
	if c.Neo4j.Password == "" {
		missing = append(missing, "NEO4J_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

// ValidateGitHub checks settings required by the code-host pipeline.
func (c *Config) ValidateGitHub() error {
	if err := c.ValidateNeo4j(); err != nil {
		return err
	}
	if c.GitHub.Token == "" {
		return fmt.Errorf("GITHUB_TOKEN is required for ingesting repository data")
	}
	if c.GitHub.Owner == "" {
		return fmt.Errorf("GITHUB_OWNER is required for ingesting repository data")
	}
	return nil
}

// ValidateJira checks settings required by the issue-tracker pipeline.
func (c *Config) ValidateJira() error {
	if err := c.ValidateNeo4j(); err != nil {
		return err
	}
	missing := []string{}
	if c.Jira.BaseURL == "" {
		missing = append(missing, "JIRA_URL")
	}
	if c.Jira.Email == "" {
		missing = append(missing, "JIRA_EMAIL")
	}
	if c.Jira.APIToken == "" {
		missing = append(missing, "JIRA_API_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}
