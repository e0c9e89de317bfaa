package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "redocdc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("REDOCDC_TEST_PASSWORD", "s3cret")

	path := writeConfig(t, `
source:
  path: /var/redo/redo01.bin
  continue_on_error: true

engine:
  owners: [hr, App]

storage:
  data_dir: /tmp/data

output:
  writer: postgres
  postgres:
    host: localhost
    database: cdc
    user: cdc
    password: ${REDOCDC_TEST_PASSWORD}

node:
  id: node1
  bind_addr: 127.0.0.1:7000
  bootstrap: true
  join_timeout: 5m

alerts:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/redo/redo01.bin", cfg.Source.Path)
	assert.True(t, cfg.Source.ContinueOnError)
	assert.Equal(t, "little", cfg.Source.ByteOrder)
	assert.Equal(t, DefaultCheckpointInterval, cfg.Source.CheckpointInterval)
	assert.Equal(t, DefaultMaxTransactions, cfg.Engine.MaxTransactions)
	assert.Equal(t, []string{"HR", "APP"}, cfg.Engine.Owners)
	assert.Equal(t, "/tmp/data/redocdc.db", cfg.DBPath())
	assert.Equal(t, "s3cret", cfg.Output.Postgres.Password)
	assert.Equal(t, 5432, cfg.Output.Postgres.Port)
	assert.Equal(t, "redocdc_outbox", cfg.Output.Postgres.Table)
	assert.True(t, cfg.Clustered())
	assert.Equal(t, 5*time.Minute, cfg.Node.JoinTimeoutDuration())
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:   "minimal",
			config: Config{Source: SourceConfig{Path: "redo.bin"}},
		},
		{
			name:    "missing source",
			config:  Config{},
			wantErr: "source.path",
		},
		{
			name:    "bad byte order",
			config:  Config{Source: SourceConfig{Path: "redo.bin", ByteOrder: "middle"}},
			wantErr: "byte_order",
		},
		{
			name: "bad writer",
			config: Config{
				Source: SourceConfig{Path: "redo.bin"},
				Output: OutputConfig{Writer: "kafka"},
			},
			wantErr: "output.writer",
		},
		{
			name: "postgres without host",
			config: Config{
				Source: SourceConfig{Path: "redo.bin"},
				Output: OutputConfig{Writer: "postgres"},
			},
			wantErr: "output.postgres.host",
		},
		{
			name: "small buffer",
			config: Config{
				Source: SourceConfig{Path: "redo.bin"},
				Output: OutputConfig{BufferSize: 100},
			},
			wantErr: "buffer_size",
		},
		{
			name: "cluster without node id",
			config: Config{
				Source: SourceConfig{Path: "redo.bin"},
				Node:   NodeConfig{Peers: []string{"node2:7000"}},
			},
			wantErr: "node.id",
		},
		{
			name: "bad join timeout",
			config: Config{
				Source: SourceConfig{Path: "redo.bin"},
				Node:   NodeConfig{JoinTimeout: "soon"},
			},
			wantErr: "join_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := Config{Source: SourceConfig{Path: "redo.bin", ByteOrder: "BIG"}}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "big", cfg.Source.ByteOrder)
	assert.Equal(t, "stream", cfg.Output.Writer)
	assert.Equal(t, "-", cfg.Output.StreamPath)
	assert.Equal(t, DefaultBufferSize, cfg.Output.BufferSize)
	assert.Equal(t, "./data", cfg.Storage.DataDir)
	assert.Equal(t, 10, cfg.Storage.KeepSchemas)
	assert.Equal(t, 30*time.Second, cfg.Node.JoinTimeoutDuration())
	assert.False(t, cfg.Clustered())
}

func TestConnectionString(t *testing.T) {
	pg := PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "testdb",
		User:     "testuser",
		Password: "testpass",
	}

	assert.Equal(t, "host=localhost port=5432 dbname=testdb user=testuser password=testpass sslmode=disable", pg.ConnectionString())
}
