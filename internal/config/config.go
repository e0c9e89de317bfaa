package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultMaxTransactions    = 1048576
	DefaultBufferSize         = 16 * 1024 * 1024
	DefaultCheckpointInterval = 1000
)

type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Storage StorageConfig `mapstructure:"storage"`
	Output  OutputConfig  `mapstructure:"output"`
	Node    NodeConfig    `mapstructure:"node"`
	Log     LogConfig     `mapstructure:"log"`
	Alerts  AlertsConfig  `mapstructure:"alerts"`
}

type SourceConfig struct {
	Path               string `mapstructure:"path"`
	ByteOrder          string `mapstructure:"byte_order"`
	ContinueOnError    bool   `mapstructure:"continue_on_error"`
	CheckpointInterval int    `mapstructure:"checkpoint_interval"`
}

type EngineConfig struct {
	MaxTransactions int      `mapstructure:"max_transactions"`
	Owners          []string `mapstructure:"owners"`
}

type StorageConfig struct {
	DataDir     string `mapstructure:"data_dir"`
	KeepSchemas int    `mapstructure:"keep_schemas"`
}

type OutputConfig struct {
	BufferSize     int            `mapstructure:"buffer_size"`
	Writer         string         `mapstructure:"writer"`
	StreamPath     string         `mapstructure:"stream_path"`
	PerOperation   bool           `mapstructure:"per_operation"`
	ShowSystem     bool           `mapstructure:"show_system"`
	HideCheckpoint bool           `mapstructure:"hide_checkpoint"`
	Postgres       PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Table    string `mapstructure:"table"`
}

type NodeConfig struct {
	ID        string            `mapstructure:"id"`
	BindAddr  string            `mapstructure:"bind_addr"`
	Peers     []string          `mapstructure:"peers"`
	Bootstrap bool              `mapstructure:"bootstrap"`
	PeerAddrs map[string]string `mapstructure:"peer_addrs"`
	// JoinTimeout bounds the wait for a raft leader at startup.
	JoinTimeout string `mapstructure:"join_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type AlertsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	SlackWebhook string `mapstructure:"slack_webhook"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if expanded := os.ExpandEnv(val); expanded != val {
			v.Set(key, expanded)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks required settings and fills in defaults.
func (c *Config) Validate() error {
	if c.Source.Path == "" {
		return fmt.Errorf("source.path is required")
	}
	switch strings.ToLower(c.Source.ByteOrder) {
	case "":
		c.Source.ByteOrder = "little"
	case "little", "big":
		c.Source.ByteOrder = strings.ToLower(c.Source.ByteOrder)
	default:
		return fmt.Errorf("invalid source.byte_order: %s (valid options: little, big)", c.Source.ByteOrder)
	}
	if c.Source.CheckpointInterval < 0 {
		return fmt.Errorf("source.checkpoint_interval must not be negative")
	}
	if c.Source.CheckpointInterval == 0 {
		c.Source.CheckpointInterval = DefaultCheckpointInterval
	}

	if c.Engine.MaxTransactions < 0 {
		return fmt.Errorf("engine.max_transactions must not be negative")
	}
	if c.Engine.MaxTransactions == 0 {
		c.Engine.MaxTransactions = DefaultMaxTransactions
	}
	for i, owner := range c.Engine.Owners {
		c.Engine.Owners[i] = strings.ToUpper(owner)
	}

	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "./data"
	}
	if c.Storage.KeepSchemas == 0 {
		c.Storage.KeepSchemas = 10
	}

	if c.Output.BufferSize == 0 {
		c.Output.BufferSize = DefaultBufferSize
	}
	if c.Output.BufferSize < 1024 {
		return fmt.Errorf("output.buffer_size must be at least 1024")
	}
	switch c.Output.Writer {
	case "":
		c.Output.Writer = "stream"
		fallthrough
	case "stream":
		if c.Output.StreamPath == "" {
			c.Output.StreamPath = "-"
		}
	case "postgres":
		pg := &c.Output.Postgres
		if pg.Host == "" {
			return fmt.Errorf("output.postgres.host is required")
		}
		if pg.Database == "" {
			return fmt.Errorf("output.postgres.database is required")
		}
		if pg.User == "" {
			return fmt.Errorf("output.postgres.user is required")
		}
		if pg.Port == 0 {
			pg.Port = 5432
		}
		if pg.Table == "" {
			pg.Table = "redocdc_outbox"
		}
	default:
		return fmt.Errorf("invalid output.writer: %s (valid options: stream, postgres)", c.Output.Writer)
	}

	if c.Clustered() {
		if c.Node.ID == "" {
			return fmt.Errorf("node.id is required")
		}
		if c.Node.BindAddr == "" {
			return fmt.Errorf("node.bind_addr is required")
		}
	}
	if c.Node.JoinTimeout == "" {
		c.Node.JoinTimeout = "30s"
	}
	if _, err := time.ParseDuration(c.Node.JoinTimeout); err != nil {
		return fmt.Errorf("invalid node.join_timeout: %w", err)
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	return nil
}

// Clustered reports whether checkpoints are replicated through raft.
func (c *Config) Clustered() bool {
	return c.Node.Bootstrap || len(c.Node.Peers) > 0 || len(c.Node.PeerAddrs) > 0
}

// DBPath is the bbolt file inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.Storage.DataDir, "redocdc.db")
}

func (n *NodeConfig) JoinTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(n.JoinTimeout)
	return d
}

func (p *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		p.Host, p.Port, p.Database, p.User, p.Password)
}
