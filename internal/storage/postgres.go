package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridian/hive/pkg/types"
)

// PostgresClient handles PostgreSQL operations for the coordinator's
// durable state: the agent roster, the current battle snapshot, the
// connection budget, and the outbox.
type PostgresClient struct {
	pool *pgxpool.Pool
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(ctx context.Context, connString string, maxConns, minConns int) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = int32(maxConns)
	config.MinConns = int32(minConns)
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresClient{pool: pool}, nil
}

// Close closes the database connection pool
func (c *PostgresClient) Close() {
	c.pool.Close()
}

// BeginTx starts a new transaction
func (c *PostgresClient) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return c.pool.Begin(ctx)
}

// ===== ROSTER =====

// UpsertAgent inserts a new agent record or refreshes an existing one's
// heartbeat, keyed on (host, port) so repeated check-ins from the same
// address return the same id (spec.md §8 idempotence property).
func (c *PostgresClient) UpsertAgent(ctx context.Context, host string, port int, allocateID func() string) (*types.AgentRecord, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	var rec types.AgentRecord
	err = tx.QueryRow(ctx, `
		SELECT id, host, port, last_heartbeat, checked_in_at
		FROM agents WHERE host = $1 AND port = $2
	`, host, port).Scan(&rec.ID, &rec.Host, &rec.Port, &rec.LastHeartbeat, &rec.CheckedInAt)

	if err == nil {
		if _, err := tx.Exec(ctx, `UPDATE agents SET last_heartbeat = $1 WHERE id = $2`, now, rec.ID); err != nil {
			return nil, fmt.Errorf("refresh heartbeat: %w", err)
		}
		rec.LastHeartbeat = now
		return &rec, tx.Commit(ctx)
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("lookup agent: %w", err)
	}

	newRec := types.AgentRecord{
		ID:            allocateID(),
		Host:          host,
		Port:          port,
		LastHeartbeat: now,
		CheckedInAt:   now,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO agents (id, host, port, last_heartbeat, checked_in_at)
		VALUES ($1, $2, $3, $4, $5)
	`, newRec.ID, newRec.Host, newRec.Port, newRec.LastHeartbeat, newRec.CheckedInAt)
	if err != nil {
		return nil, fmt.Errorf("insert agent: %w", err)
	}

	return &newRec, tx.Commit(ctx)
}

// RefreshHeartbeat updates an agent's last_heartbeat by id. Returns
// pgx.ErrNoRows wrapped if no such record exists.
func (c *PostgresClient) RefreshHeartbeat(ctx context.Context, id string) error {
	tag, err := c.pool.Exec(ctx, `UPDATE agents SET last_heartbeat = $1 WHERE id = $2`, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agent not found: %s", id)
	}
	return nil
}

// ListAgents returns the full roster, ordered by check-in time.
func (c *PostgresClient) ListAgents(ctx context.Context) ([]*types.AgentRecord, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, host, port, last_heartbeat, checked_in_at FROM agents ORDER BY checked_in_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []*types.AgentRecord
	for rows.Next() {
		var a types.AgentRecord
		if err := rows.Scan(&a.ID, &a.Host, &a.Port, &a.LastHeartbeat, &a.CheckedInAt); err != nil {
			return nil, err
		}
		agents = append(agents, &a)
	}
	return agents, rows.Err()
}

// GetAgent retrieves a single agent record by id.
func (c *PostgresClient) GetAgent(ctx context.Context, id string) (*types.AgentRecord, error) {
	var a types.AgentRecord
	err := c.pool.QueryRow(ctx, `
		SELECT id, host, port, last_heartbeat, checked_in_at FROM agents WHERE id = $1
	`, id).Scan(&a.ID, &a.Host, &a.Port, &a.LastHeartbeat, &a.CheckedInAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("agent not found: %s", id)
		}
		return nil, err
	}
	return &a, nil
}

// SweepStale removes roster entries whose last_heartbeat predates the
// cutoff, returning the removed ids so callers can log/publish events.
func (c *PostgresClient) SweepStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := c.pool.Query(ctx, `DELETE FROM agents WHERE last_heartbeat < $1 RETURNING id`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var removed []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		removed = append(removed, id)
	}
	return removed, rows.Err()
}

// ClearRoster removes every agent record (used by /hive/torch).
func (c *PostgresClient) ClearRoster(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, `DELETE FROM agents`)
	return err
}

// ===== BATTLE SNAPSHOT =====

// SaveBattleSnapshot persists the current battle's roster snapshot and
// params, overwriting any previous snapshot — this is operational state
// for crash recovery, not a historical-results archive.
func (c *PostgresClient) SaveBattleSnapshot(ctx context.Context, snap *types.BattleSnapshot) error {
	agentIDs, _ := json.Marshal(snap.AgentIDs)
	params, _ := json.Marshal(snap.Params)

	_, err := c.pool.Exec(ctx, `
		INSERT INTO battle_snapshot (id, agent_ids, params, started_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET agent_ids = $1, params = $2, started_at = $3
	`, agentIDs, params, snap.StartedAt)
	return err
}

// GetBattleSnapshot returns the most recently saved battle snapshot, or
// nil if none has been saved yet.
func (c *PostgresClient) GetBattleSnapshot(ctx context.Context) (*types.BattleSnapshot, error) {
	var agentIDsJSON, paramsJSON []byte
	var snap types.BattleSnapshot

	err := c.pool.QueryRow(ctx, `
		SELECT agent_ids, params, started_at FROM battle_snapshot WHERE id = 1
	`).Scan(&agentIDsJSON, &paramsJSON, &snap.StartedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(agentIDsJSON, &snap.AgentIDs); err != nil {
		return nil, fmt.Errorf("unmarshal agent_ids: %w", err)
	}
	if err := json.Unmarshal(paramsJSON, &snap.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return &snap, nil
}

// ===== CONNECTION BUDGET =====

// ConnectionBudget is the global cap on concurrent connections a single
// /hive/poke is allowed to request across the fleet.
type ConnectionBudget struct {
	MaxConnections int64 `json:"max_connections"`
}

// GetConnectionBudget returns the configured global connection budget, or
// a permissive default if none has been set.
func (c *PostgresClient) GetConnectionBudget(ctx context.Context) (*ConnectionBudget, error) {
	var max int64
	err := c.pool.QueryRow(ctx, `SELECT max_connections FROM connection_budget WHERE id = 1`).Scan(&max)
	if err != nil {
		if err == pgx.ErrNoRows {
			return &ConnectionBudget{MaxConnections: 100000}, nil
		}
		return nil, err
	}
	return &ConnectionBudget{MaxConnections: max}, nil
}

// SetConnectionBudget sets the global connection budget.
func (c *PostgresClient) SetConnectionBudget(ctx context.Context, max int64) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO connection_budget (id, max_connections) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET max_connections = $1
	`, max)
	return err
}

// ===== OUTBOX =====

// GetPendingOutboxEntries retrieves undelivered outbox entries
func (c *PostgresClient) GetPendingOutboxEntries(ctx context.Context, limit int) ([]*types.OutboxEntry, error) {
	query := `
		SELECT id, created_at, event_id, service_name, aggregate_type, aggregate_id,
		       event_type, payload, metadata, routing_key, attempts, max_attempts
		FROM outbox
		WHERE delivered = false
		  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	rows, err := c.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*types.OutboxEntry
	for rows.Next() {
		var entry types.OutboxEntry
		var payloadJSON, metadataJSON []byte
		var aggregateType, aggregateID sql.NullString

		err := rows.Scan(
			&entry.ID, &entry.CreatedAt, &entry.EventID, &entry.ServiceName,
			&aggregateType, &aggregateID, &entry.EventType,
			&payloadJSON, &metadataJSON, &entry.RoutingKey,
			&entry.Attempts, &entry.MaxAttempts,
		)
		if err != nil {
			return nil, err
		}

		json.Unmarshal(payloadJSON, &entry.Payload)
		json.Unmarshal(metadataJSON, &entry.Metadata)

		if aggregateType.Valid {
			entry.AggregateType = aggregateType.String
		}
		if aggregateID.Valid {
			entry.AggregateID = aggregateID.String
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// InsertOutboxEntry inserts a new outbox entry for later delivery by the
// outbox publisher.
func (c *PostgresClient) InsertOutboxEntry(ctx context.Context, eventType, aggregateID, routingKey string, payload map[string]interface{}) error {
	payloadJSON, _ := json.Marshal(payload)
	_, err := c.pool.Exec(ctx, `
		INSERT INTO outbox (service_name, event_type, payload, aggregate_type, aggregate_id, routing_key)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, "hive", eventType, payloadJSON, "battle", aggregateID, routingKey)
	return err
}

// MarkOutboxDelivered marks an outbox entry as delivered
func (c *PostgresClient) MarkOutboxDelivered(ctx context.Context, id int64) error {
	_, err := c.pool.Exec(ctx, `
		UPDATE outbox
		SET delivered = true, delivered_at = NOW()
		WHERE id = $1
	`, id)
	return err
}

// IncrementOutboxAttempts increments retry attempts and schedules next retry
func (c *PostgresClient) IncrementOutboxAttempts(ctx context.Context, id int64, errMsg string) error {
	_, err := c.pool.Exec(ctx, `
		UPDATE outbox
		SET attempts = attempts + 1,
		    last_attempt_at = NOW(),
		    next_retry_at = NOW() + (POWER(2, attempts) || ' seconds')::INTERVAL,
		    error = $1
		WHERE id = $2
	`, errMsg, id)
	return err
}
