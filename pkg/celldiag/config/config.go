// Package config loads the celldiag application settings and the component
// documents they point at.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/cognicore/celldiag/pkg/celldiag/gate"
	"github.com/cognicore/celldiag/pkg/celldiag/internalerr"
	"github.com/cognicore/celldiag/pkg/celldiag/reasoning"
	"github.com/cognicore/celldiag/pkg/celldiag/rules"
)

// Schema source kinds.
const (
	SourceFile  = "file"
	SourceNeo4j = "neo4j"
)

// EnvPrefix prefixes every environment override, e.g. CELLDIAG_NEO4J_PASSWORD.
const EnvPrefix = "CELLDIAG"

type Config struct {
	Schema    SchemaConfig     `mapstructure:"schema"`
	Rules     RulesConfig      `mapstructure:"rules"`
	Lexicon   LexiconConfig    `mapstructure:"lexicon"`
	History   HistoryConfig    `mapstructure:"history"`
	Neo4j     Neo4jConfig      `mapstructure:"neo4j"`
	Influx    InfluxConfig     `mapstructure:"influx"`
	Gate      gate.Thresholds  `mapstructure:"gate"`
	Reasoning reasoning.Config `mapstructure:"reasoning"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
}

type SchemaConfig struct {
	Source string `mapstructure:"source"`
	Path   string `mapstructure:"path"`
}

type RulesConfig struct {
	StateRules        string `mapstructure:"state_rules"`
	PatternThresholds string `mapstructure:"pattern_thresholds"`
	InferenceRules    string `mapstructure:"inference_rules"`
}

// Paths converts the section into the rule loader's input.
func (r RulesConfig) Paths() rules.Paths {
	return rules.Paths{
		StateRules:        r.StateRules,
		PatternThresholds: r.PatternThresholds,
		InferenceRules:    r.InferenceRules,
	}
}

// LexiconConfig points at an optional vocabulary file; empty uses the
// built-in one.
type LexiconConfig struct {
	Path string `mapstructure:"path"`
}

// HistoryConfig selects the pattern history store; an empty SQLitePath
// keeps history in memory.
type HistoryConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
}

type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

type InfluxConfig struct {
	URL         string `mapstructure:"url"`
	Token       string `mapstructure:"token"`
	Org         string `mapstructure:"org"`
	Bucket      string `mapstructure:"bucket"`
	Measurement string `mapstructure:"measurement"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig holds the listen address of the metrics endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads settings from path, or from celldiag.yaml in the usual
// locations when path is empty, then applies CELLDIAG_* environment
// overrides. A missing file is only an error when path was given.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("celldiag")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/celldiag")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Schema.Source {
	case SourceFile:
		if c.Schema.Path == "" {
			return fmt.Errorf("%w: schema.path is required for the file source", internalerr.ErrInvalidConfig)
		}
	case SourceNeo4j:
		if c.Neo4j.URI == "" {
			return fmt.Errorf("%w: neo4j.uri is required for the neo4j source", internalerr.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown schema.source %q", internalerr.ErrInvalidConfig, c.Schema.Source)
	}
	if c.Rules.StateRules == "" || c.Rules.PatternThresholds == "" {
		return fmt.Errorf("%w: rules.state_rules and rules.pattern_thresholds are required", internalerr.ErrInvalidConfig)
	}
	if c.Reasoning.PathDepth < 1 || c.Reasoning.ContextDepth < 0 || c.Reasoning.AttentionCount < 1 {
		return fmt.Errorf("%w: reasoning depths and attention_count must be positive", internalerr.ErrInvalidConfig)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("schema.source", SourceFile)
	v.SetDefault("schema.path", "./config/schema.yaml")

	v.SetDefault("rules.state_rules", "./config/state_rules.yaml")
	v.SetDefault("rules.pattern_thresholds", "./config/pattern_thresholds.yaml")
	v.SetDefault("rules.inference_rules", "./config/inference_rules.yaml")

	v.SetDefault("lexicon.path", "")
	v.SetDefault("history.sqlite_path", "")

	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "password")
	v.SetDefault("neo4j.database", "neo4j")

	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "cell")
	v.SetDefault("influx.bucket", "robot-sensors")
	v.SetDefault("influx.measurement", "ft_sensor")

	th := gate.DefaultThresholds()
	v.SetDefault("gate.classification", th.Classification)
	v.SetDefault("gate.classification_with_entity", th.ClassificationWithEntity)
	v.SetDefault("gate.classification_high_value", th.ClassificationHighValue)
	v.SetDefault("gate.entity", th.Entity)
	v.SetDefault("gate.reasoning", th.Reasoning)
	v.SetDefault("gate.final", th.Final)
	types := make([]string, len(th.HighValueTypes))
	for i, t := range th.HighValueTypes {
		types[i] = string(t)
	}
	v.SetDefault("gate.high_value_types", types)

	rc := reasoning.DefaultConfig()
	v.SetDefault("reasoning.magnitude_bound", rc.MagnitudeBound)
	v.SetDefault("reasoning.maintenance_window", rc.MaintenanceWindow.String())
	v.SetDefault("reasoning.attention_count", rc.AttentionCount)
	v.SetDefault("reasoning.path_depth", rc.PathDepth)
	v.SetDefault("reasoning.context_depth", rc.ContextDepth)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("metrics.addr", ":9464")
}
