package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/kuhlman-labs/migration-auditor/internal/ado"
)

// EnvPrefix is prepended to every config key when read from the environment,
// e.g. audit.workers -> MIGAUDIT_AUDIT_WORKERS.
const EnvPrefix = "MIGAUDIT"

type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Target    TargetConfig    `mapstructure:"target"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Workflows WorkflowsConfig `mapstructure:"workflows"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Report    ReportConfig    `mapstructure:"report"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SourceConfig describes the Azure DevOps side of the migration.
type SourceConfig struct {
	BaseURL      string `mapstructure:"base_url"`     // Service root, override for Azure DevOps Server
	Organization string `mapstructure:"organization"` // Name or organization URL
	Project      string `mapstructure:"project"`
	Token        string `mapstructure:"token"` // PAT with Code (Read) scope

	RefsPageSize    int           `mapstructure:"refs_page_size"`
	CommitsPageSize int           `mapstructure:"commits_page_size"`
	PageDelay       time.Duration `mapstructure:"page_delay"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
}

// TargetConfig describes the GitHub side of the migration.
type TargetConfig struct {
	BaseURL   string `mapstructure:"base_url"`   // API base URL, https://api.github.com or GHES /api/v3
	Owner     string `mapstructure:"owner"`      // Organization or user that owns the migrated repositories
	OwnerType string `mapstructure:"owner_type"` // org, user or auto
	Token     string `mapstructure:"token"`

	// GitHub App authentication, used instead of Token when all three are set
	AppID             int64  `mapstructure:"app_id"`
	AppPrivateKey     string `mapstructure:"app_private_key"` // File path or inline PEM
	AppInstallationID int64  `mapstructure:"app_installation_id"`

	PageSize       int           `mapstructure:"page_size"`
	PageDelay      time.Duration `mapstructure:"page_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// AuditConfig controls the comparison stages.
type AuditConfig struct {
	Workers        int  `mapstructure:"workers"`
	ParallelStages bool `mapstructure:"parallel_stages"` // Run commits, tags and workflows concurrently
	// Each entry is one alias group written as names joined by ":", e.g. "master:main".
	BranchAliases []string `mapstructure:"branch_aliases"`
}

type WorkflowsConfig struct {
	Path     string   `mapstructure:"path"`
	Required []string `mapstructure:"required"`
	Validate bool     `mapstructure:"validate"` // Fetch and parse each required file
}

type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type ReportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	FileName  string `mapstructure:"file_name"`
	Certifier string `mapstructure:"certifier"` // Name printed as the person responsible for the audit
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // "debug", "info", "warn", "error"
	Format     string `mapstructure:"format"` // "json" or "text"
	OutputFile string `mapstructure:"output_file"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// Options control where Load looks for configuration.
type Options struct {
	// ConfigFile is an explicit YAML file. When empty, migration-auditor.yaml is
	// searched in . and ./configs and its absence is not an error.
	ConfigFile string
	// EnvFile is loaded into the process environment before anything else.
	// Defaults to .env; a missing file is ignored.
	EnvFile string
}

// legacyEnv maps config keys to the bare variable names the audit scripts have
// always used. The prefixed name still takes precedence.
var legacyEnv = map[string]string{
	"source.organization": "AZURE_ORG",
	"source.project":      "AZURE_PROJECT",
	"source.token":        "AZURE_TOKEN",
	"target.owner":        "GITHUB_OWNER",
	"target.token":        "GITHUB_TOKEN",
	"audit.workers":       "MAX_WORKERS",
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in increasing order of precedence.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := gotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	// audit.branch_aliases -> MIGAUDIT_AUDIT_BRANCH_ALIASES
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, name); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", name, err)
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", opts.ConfigFile, err)
		}
	} else {
		v.SetConfigName("migration-auditor")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Viper doesn't split comma-separated env values into slices
	cfg.ParseArrayEnvVars()
	cfg.projectFromOrganization()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.base_url", "https://dev.azure.com")
	v.SetDefault("source.refs_page_size", 5000)
	v.SetDefault("source.commits_page_size", 1000)
	v.SetDefault("source.page_delay", 200*time.Millisecond)
	v.SetDefault("source.request_timeout", 60*time.Second)
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("target.base_url", "https://api.github.com")
	v.SetDefault("target.owner_type", OwnerTypeAuto)
	v.SetDefault("target.page_size", 100)
	v.SetDefault("target.page_delay", 150*time.Millisecond)
	v.SetDefault("target.request_timeout", 60*time.Second)
	v.SetDefault("target.max_retries", 3)
	v.SetDefault("audit.workers", 12)
	v.SetDefault("audit.parallel_stages", false)
	v.SetDefault("audit.branch_aliases", []string{"master:main"})
	v.SetDefault("workflows.path", ".github/workflows")
	v.SetDefault("workflows.required", DefaultRequiredWorkflows())
	v.SetDefault("workflows.validate", false)
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("report.output_dir", "reports")
	v.SetDefault("report.file_name", "final_report.html")
	v.SetDefault("report.certifier", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output_file", "./logs/migration-auditor.log")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
}

// Owner types accepted by target.owner_type.
const (
	OwnerTypeOrg  = "org"
	OwnerTypeUser = "user"
	OwnerTypeAuto = "auto"
)

// DefaultRequiredWorkflows are the pipeline files every migrated repository is expected to carry.
func DefaultRequiredWorkflows() []string {
	return []string{"workflow-dev.yml", "workflow-prod.yml", "workflow-qa.yml", "workflows-pr.yml"}
}

// ParseArrayEnvVars normalizes slice fields that may arrive as a single
// comma-separated or JSON-looking string from the environment.
func (c *Config) ParseArrayEnvVars() {
	c.Workflows.Required = parseStringSlice(c.Workflows.Required)
	c.Audit.BranchAliases = parseStringSlice(c.Audit.BranchAliases)
}

// projectFromOrganization fills an empty source.project from a project or
// clone URL given as the organization.
func (c *Config) projectFromOrganization() {
	if c.Source.Project != "" || c.Source.Organization == "" {
		return
	}
	if loc, err := ado.ParseOrganization(c.Source.Organization); err == nil {
		c.Source.Project = loc.Project
	}
}

// AliasGroups splits each configured alias entry on ":".
func (c *Config) AliasGroups() [][]string {
	groups := make([][]string, 0, len(c.Audit.BranchAliases))
	for _, entry := range c.Audit.BranchAliases {
		var group []string
		for _, name := range strings.Split(entry, ":") {
			if name = strings.TrimSpace(name); name != "" {
				group = append(group, name)
			}
		}
		if len(group) > 1 {
			groups = append(groups, group)
		}
	}
	return groups
}

// UsesGitHubApp reports whether App credentials are complete.
func (t *TargetConfig) UsesGitHubApp() bool {
	return t.AppID > 0 && t.AppInstallationID > 0 && t.AppPrivateKey != ""
}

// ValidateSource checks the fields every Azure DevOps call needs.
func (c *Config) ValidateSource() error {
	var missing []string
	if c.Source.Organization == "" {
		missing = append(missing, "source.organization (AZURE_ORG)")
	}
	if c.Source.Project == "" {
		missing = append(missing, "source.project (AZURE_PROJECT)")
	}
	if c.Source.Token == "" {
		missing = append(missing, "source.token (AZURE_TOKEN)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.Source.RefsPageSize <= 0 || c.Source.CommitsPageSize <= 0 {
		return fmt.Errorf("source page sizes must be positive")
	}
	return nil
}

// ValidateTarget checks the fields every GitHub call needs.
func (c *Config) ValidateTarget() error {
	var missing []string
	if c.Target.Owner == "" {
		missing = append(missing, "target.owner (GITHUB_OWNER)")
	}
	if c.Target.Token == "" && !c.Target.UsesGitHubApp() {
		missing = append(missing, "target.token (GITHUB_TOKEN) or GitHub App credentials")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	switch c.Target.OwnerType {
	case OwnerTypeOrg, OwnerTypeUser, OwnerTypeAuto:
	default:
		return fmt.Errorf("invalid target.owner_type %q (want org, user or auto)", c.Target.OwnerType)
	}
	if c.Target.PageSize <= 0 || c.Target.PageSize > 100 {
		return fmt.Errorf("target.page_size must be between 1 and 100, got %d", c.Target.PageSize)
	}
	return nil
}

// Validate checks the settings shared by every audit stage.
func (c *Config) Validate() error {
	if err := c.ValidateSource(); err != nil {
		return err
	}
	if err := c.ValidateTarget(); err != nil {
		return err
	}
	if c.Audit.Workers <= 0 {
		return fmt.Errorf("audit.workers must be positive, got %d", c.Audit.Workers)
	}
	if c.Workflows.Path == "" {
		return fmt.Errorf("workflows.path must not be empty")
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}
	for _, entry := range c.Audit.BranchAliases {
		names := 0
		for _, name := range strings.Split(entry, ":") {
			if strings.TrimSpace(name) != "" {
				names++
			}
		}
		if names < 2 {
			return fmt.Errorf("audit.branch_aliases entry %q must name at least two branches, e.g. master:main", entry)
		}
	}
	return nil
}

// parseStringSlice handles parsing of string slice from various formats:
// - Comma-separated: "a,b,c"
// - Single value: "a"
// - Already parsed array: ["a", "b"]
// - JSON array string: '["a","b"]'
func parseStringSlice(input []string) []string {
	if len(input) == 0 {
		return input
	}

	if len(input) == 1 {
		value := strings.TrimSpace(input[0])
		if value == "" {
			return []string{}
		}

		if strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]") {
			value = strings.TrimSpace(value[1 : len(value)-1])
			value = strings.NewReplacer(`"`, "", "'", "").Replace(value)
			if value == "" {
				return []string{}
			}
		}

		return splitTrimmed(value)
	}

	// A JSON array that viper already split on whitespace or commas
	if strings.HasPrefix(strings.TrimSpace(input[0]), "[") {
		return parseStringSlice([]string{strings.Join(input, ",")})
	}

	result := make([]string, 0, len(input))
	for _, item := range input {
		item = strings.TrimSpace(strings.Trim(strings.TrimSpace(item), `[]"'`))
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}

func splitTrimmed(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
