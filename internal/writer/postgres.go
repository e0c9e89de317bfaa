package writer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redocdc/redocdc/internal/builder"
)

type pgConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Close(ctx context.Context) error
}

// PostgresTarget appends every message to an outbox table.
type PostgresTarget struct {
	conn   pgConn
	table  string
	insert string
}

func ConnectPostgres(ctx context.Context, connString, table string) (*PostgresTarget, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	t, err := newPostgresTarget(ctx, conn, table)
	if err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return t, nil
}

func newPostgresTarget(ctx context.Context, conn pgConn, table string) (*PostgresTarget, error) {
	ident := pgx.Identifier{table}.Sanitize()
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	scn BIGINT NOT NULL,
	xid TEXT,
	op TEXT NOT NULL,
	message JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, ident)
	if _, err := conn.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create outbox table: %w", err)
	}

	return &PostgresTarget{
		conn:   conn,
		table:  table,
		insert: fmt.Sprintf("INSERT INTO %s (scn, xid, op, message) VALUES ($1, $2, $3, $4::jsonb)", ident),
	}, nil
}

// summary extracts the columns stored next to the raw message.
func summary(msg []byte) (int64, string, string, error) {
	var m builder.Message
	if err := json.Unmarshal(msg, &m); err != nil {
		return 0, "", "", fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	op := "tx"
	if len(m.Payload) == 1 {
		op = m.Payload[0].Op
	}
	return int64(m.SCN), m.XID, op, nil
}

func (p *PostgresTarget) Write(ctx context.Context, msg []byte) error {
	scn, xid, op, err := summary(msg)
	if err != nil {
		return err
	}
	var xidArg any
	if xid != "" {
		xidArg = xid
	}
	if _, err := p.conn.Exec(ctx, p.insert, scn, xidArg, op, string(msg)); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", p.table, err)
	}
	return nil
}

func (p *PostgresTarget) Close(ctx context.Context) error {
	return p.conn.Close(ctx)
}
