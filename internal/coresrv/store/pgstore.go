package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v4"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/web-cat/core/internal/common/uuid"
)

// PgStore is the PostgreSQL-backed object store. Objects are persisted as an
// attribute document per entity plus one row per relationship edge, so the
// editing-context layer sees the same model as the in-memory store.
type PgStore struct {
	mu      sync.Mutex
	schemas SchemaSet
	db      *sql.DB

	maxChannels int
	live        int

	requests uint64
	returns  uint64
}

const pgSchemaDDL = `
CREATE TABLE IF NOT EXISTS entities (
	entity_type text NOT NULL,
	entity_id   uuid NOT NULL,
	attrs       jsonb NOT NULL DEFAULT '{}'::jsonb,
	PRIMARY KEY (entity_type, entity_id)
);
CREATE TABLE IF NOT EXISTS entity_links (
	source_type text NOT NULL,
	source_id   uuid NOT NULL,
	rel_key     text NOT NULL,
	position    int  NOT NULL,
	target_type text NOT NULL,
	target_id   uuid NOT NULL,
	PRIMARY KEY (source_type, source_id, rel_key, target_type, target_id)
);
CREATE INDEX IF NOT EXISTS entity_links_target_idx
	ON entity_links (target_type, target_id);
`

// NewPgStore opens the PostgreSQL store with the given DSN. The initial ping
// is retried briefly so the server can come up alongside the database.
func NewPgStore(ctx context.Context, schemas SchemaSet, dsn string, maxChannels int) (*PgStore, error) {
	if maxChannels <= 0 {
		maxChannels = 5
	}

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to open db")
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	err = retry.Do(
		func() error { return sqlDB.PingContext(ctx) },
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(500*time.Millisecond),
	)
	if err != nil {
		sqlDB.Close()
		log.Ctx(ctx).Error().Err(err).Msg("failed to ping db")
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := sqlDB.ExecContext(ctx, pgSchemaDDL); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize store tables: %w", err)
	}

	return &PgStore{
		schemas:     schemas,
		db:          sqlDB,
		maxChannels: maxChannels,
	}, nil
}

// NewContext allocates a new editing context backed by a dedicated database
// connection. Requests beyond the channel cap are refused and logged.
func (ps *PgStore) NewContext(ctx context.Context) (EditingContext, error) {
	ps.mu.Lock()
	if ps.live >= ps.maxChannels {
		live := ps.live
		ps.mu.Unlock()
		log.Ctx(ctx).Error().
			Int("live", live).
			Int("max", ps.maxChannels).
			Msg("editing context channel limit reached")
		return nil, ErrChannelLimit
	}
	ps.live++
	ps.mu.Unlock()

	connCtx, cancel := context.WithCancel(context.Background())
	conn, err := ps.db.Conn(connCtx)
	if err != nil {
		cancel()
		ps.releaseChannel()
		log.Ctx(ctx).Error().Err(err).Msg("failed to obtain connection")
		return nil, ErrStore.MsgErr("failed to obtain database connection", err)
	}

	for param, value := range map[string]string{
		"lock_timeout":                        "5s",
		"statement_timeout":                   "5s",
		"idle_in_transaction_session_timeout": "5s",
	} {
		query := fmt.Sprintf("SET %s = %s", pq.QuoteIdentifier(param), pq.QuoteLiteral(value))
		if _, err := conn.ExecContext(connCtx, query); err != nil {
			conn.Close()
			cancel()
			ps.releaseChannel()
			return nil, ErrStore.MsgErr("failed to set "+param, err)
		}
	}

	atomic.AddUint64(&ps.requests, 1)
	return &pgContext{
		st:       ps,
		conn:     conn,
		cancel:   cancel,
		records:  map[EntityRef]*Record{},
		inserted: map[EntityRef]bool{},
		deleted:  map[EntityRef]bool{},
		dirty:    map[EntityRef]bool{},
	}, nil
}

func (ps *PgStore) releaseChannel() {
	ps.mu.Lock()
	ps.live--
	ps.mu.Unlock()
}

// Stats returns the number of context allocations and returns.
func (ps *PgStore) Stats() (requests, returns uint64) {
	return atomic.LoadUint64(&ps.requests), atomic.LoadUint64(&ps.returns)
}

// Ping verifies database reachability.
func (ps *PgStore) Ping(ctx context.Context) error {
	return ps.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (ps *PgStore) Close() error {
	return ps.db.Close()
}

// pgContext is an editing context holding one dedicated connection.
type pgContext struct {
	st     *PgStore
	conn   *sql.Conn
	cancel context.CancelFunc
	lockMu sync.Mutex

	records  map[EntityRef]*Record
	inserted map[EntityRef]bool
	deleted  map[EntityRef]bool
	dirty    map[EntityRef]bool
	disposed bool
}

func (pc *pgContext) Lock()   { pc.lockMu.Lock() }
func (pc *pgContext) Unlock() { pc.lockMu.Unlock() }

func (pc *pgContext) editingContext() EditingContext {
	return pc
}

func (pc *pgContext) markDirty(ref EntityRef) {
	pc.dirty[ref] = true
}

func (pc *pgContext) Localize(obj EnterpriseObject) (EnterpriseObject, error) {
	if pc.disposed {
		return nil, ErrContextDisposed
	}
	if obj == nil {
		return nil, ErrNotFound.Msg("cannot localize nil object")
	}
	if obj.Context() == EditingContext(pc) {
		return obj, nil
	}
	return pc.localizeRef(obj.Ref())
}

func (pc *pgContext) localizeRef(ref EntityRef) (*Record, error) {
	if pc.disposed {
		return nil, ErrContextDisposed
	}
	if rec, ok := pc.records[ref]; ok {
		return rec, nil
	}
	if pc.deleted[ref] {
		return nil, ErrNotFound.Msg("object was deleted in this context")
	}
	schema, ok := pc.st.schemas[ref.Type]
	if !ok {
		return nil, ErrUnknownEntityType.Msg(ref.Type)
	}

	ctx := context.Background()
	var rawAttrs []byte
	err := pc.conn.QueryRowContext(ctx,
		`SELECT attrs FROM entities WHERE entity_type = $1 AND entity_id = $2`,
		ref.Type, ref.ID).Scan(&rawAttrs)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound.Msg("no committed object for " + ref.Type)
	}
	if err != nil {
		return nil, ErrStore.MsgErr("failed to load object", err)
	}
	attrs := map[string]any{}
	if err := json.Unmarshal(rawAttrs, &attrs); err != nil {
		return nil, ErrStore.MsgErr("corrupt attribute document", err)
	}

	rels := map[string][]EntityRef{}
	rows, err := pc.conn.QueryContext(ctx,
		`SELECT rel_key, target_type, target_id FROM entity_links
		 WHERE source_type = $1 AND source_id = $2 ORDER BY rel_key, position`,
		ref.Type, ref.ID)
	if err != nil {
		return nil, ErrStore.MsgErr("failed to load relationships", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, targetType string
		var targetID uuid.UUID
		if err := rows.Scan(&key, &targetType, &targetID); err != nil {
			return nil, ErrStore.MsgErr("failed to scan relationship", err)
		}
		rels[key] = append(rels[key], EntityRef{Type: targetType, ID: targetID})
	}
	if err := rows.Err(); err != nil {
		return nil, ErrStore.MsgErr("failed to read relationships", err)
	}

	rec := newRecord(schema, ref.ID, pc)
	rec.reset(attrs, rels)
	pc.records[ref] = rec
	return rec, nil
}

func (pc *pgContext) Insert(entityType string) (EnterpriseObject, error) {
	if pc.disposed {
		return nil, ErrContextDisposed
	}
	schema, ok := pc.st.schemas[entityType]
	if !ok {
		return nil, ErrUnknownEntityType.Msg(entityType)
	}
	rec := newRecord(schema, uuid.New(), pc)
	ref := rec.Ref()
	pc.records[ref] = rec
	pc.inserted[ref] = true
	pc.dirty[ref] = true
	return rec, nil
}

func (pc *pgContext) Delete(obj EnterpriseObject) error {
	if pc.disposed {
		return ErrContextDisposed
	}
	local, err := pc.Localize(obj)
	if err != nil {
		return err
	}
	ref := local.Ref()
	delete(pc.records, ref)
	delete(pc.dirty, ref)
	if pc.inserted[ref] {
		delete(pc.inserted, ref)
		return nil
	}
	pc.deleted[ref] = true
	return nil
}

func (pc *pgContext) Fetch(ctx context.Context, entityType string, q Qualifier) ([]EnterpriseObject, error) {
	if pc.disposed {
		return nil, ErrContextDisposed
	}
	schema, ok := pc.st.schemas[entityType]
	if !ok {
		return nil, ErrUnknownEntityType.Msg(entityType)
	}

	attrQual := map[string]any{}
	query := `SELECT entity_id FROM entities WHERE entity_type = $1`
	args := []any{entityType}
	for key, want := range q {
		if ref, isRef := want.(EntityRef); isRef {
			if !schema.IsRelationship(key) {
				return nil, ErrUnknownKey.Msg("qualifier relationship " + key)
			}
			query += fmt.Sprintf(` AND EXISTS (
				SELECT 1 FROM entity_links l
				WHERE l.source_type = entities.entity_type
				  AND l.source_id = entities.entity_id
				  AND l.rel_key = $%d AND l.target_type = $%d AND l.target_id = $%d)`,
				len(args)+1, len(args)+2, len(args)+3)
			args = append(args, key, ref.Type, ref.ID)
			continue
		}
		if !schema.IsAttribute(key) {
			return nil, ErrUnknownKey.Msg("qualifier attribute " + key)
		}
		attrQual[key] = want
	}
	if len(attrQual) > 0 {
		doc, err := json.Marshal(attrQual)
		if err != nil {
			return nil, ErrStore.MsgErr("failed to encode qualifier", err)
		}
		query += fmt.Sprintf(` AND attrs @> $%d::jsonb`, len(args)+1)
		args = append(args, string(doc))
	}

	rows, err := pc.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ErrStore.MsgErr("fetch failed", err)
	}
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, ErrStore.MsgErr("failed to scan fetch result", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, ErrStore.MsgErr("failed to read fetch results", err)
	}

	out := make([]EnterpriseObject, 0, len(ids))
	for _, id := range ids {
		ref := EntityRef{Type: entityType, ID: id}
		if pc.deleted[ref] {
			continue
		}
		rec, err := pc.localizeRef(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (pc *pgContext) SaveChanges(ctx context.Context) (err error) {
	if pc.disposed {
		return ErrContextDisposed
	}
	tx, errStd := pc.conn.BeginTx(ctx, nil)
	if errStd != nil {
		log.Ctx(ctx).Error().Err(errStd).Msg("failed to begin transaction")
		return ErrSaveFailed.Err(errStd)
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				log.Ctx(ctx).Error().Err(rollbackErr).Msg("failed to rollback transaction")
			}
		}
	}()

	for ref := range pc.deleted {
		if _, errStd = tx.ExecContext(ctx,
			`DELETE FROM entities WHERE entity_type = $1 AND entity_id = $2`,
			ref.Type, ref.ID); errStd != nil {
			err = ErrSaveFailed.Err(errStd)
			return err
		}
		if _, errStd = tx.ExecContext(ctx,
			`DELETE FROM entity_links
			 WHERE (source_type = $1 AND source_id = $2)
			    OR (target_type = $1 AND target_id = $2)`,
			ref.Type, ref.ID); errStd != nil {
			err = ErrSaveFailed.Err(errStd)
			return err
		}
	}

	for ref := range pc.dirty {
		rec, ok := pc.records[ref]
		if !ok {
			continue
		}
		doc, errStd := json.Marshal(rec.Snapshot())
		if errStd != nil {
			err = ErrSaveFailed.Err(errStd)
			return err
		}
		if _, errStd = tx.ExecContext(ctx,
			`INSERT INTO entities (entity_type, entity_id, attrs) VALUES ($1, $2, $3::jsonb)
			 ON CONFLICT (entity_type, entity_id) DO UPDATE SET attrs = EXCLUDED.attrs`,
			ref.Type, ref.ID, string(doc)); errStd != nil {
			err = ErrSaveFailed.Err(errStd)
			return err
		}
		if _, errStd = tx.ExecContext(ctx,
			`DELETE FROM entity_links WHERE source_type = $1 AND source_id = $2`,
			ref.Type, ref.ID); errStd != nil {
			err = ErrSaveFailed.Err(errStd)
			return err
		}
		for key := range rec.rels {
			for pos, target := range rec.relatedRefs(key) {
				if _, errStd = tx.ExecContext(ctx,
					`INSERT INTO entity_links
					 (source_type, source_id, rel_key, position, target_type, target_id)
					 VALUES ($1, $2, $3, $4, $5, $6)`,
					ref.Type, ref.ID, key, pos, target.Type, target.ID); errStd != nil {
					err = ErrSaveFailed.Err(errStd)
					return err
				}
			}
		}
	}

	if errStd = tx.Commit(); errStd != nil {
		log.Ctx(ctx).Error().Err(errStd).Msg("failed to commit transaction")
		err = ErrSaveFailed.Err(errStd)
		return err
	}

	pc.inserted = map[EntityRef]bool{}
	pc.deleted = map[EntityRef]bool{}
	pc.dirty = map[EntityRef]bool{}
	return nil
}

func (pc *pgContext) Revert() {
	if pc.disposed {
		return
	}
	// Drop working copies; the next localize re-reads committed state.
	pc.records = map[EntityRef]*Record{}
	pc.inserted = map[EntityRef]bool{}
	pc.deleted = map[EntityRef]bool{}
	pc.dirty = map[EntityRef]bool{}
}

func (pc *pgContext) Dispose() {
	if pc.disposed {
		return
	}
	pc.disposed = true
	pc.records = nil
	pc.inserted = nil
	pc.deleted = nil
	pc.dirty = nil

	if pc.conn != nil {
		pc.conn.Close()
	}
	if pc.cancel != nil {
		pc.cancel()
	}
	pc.st.releaseChannel()
	atomic.AddUint64(&pc.st.returns, 1)
}

func (pc *pgContext) Disposed() bool {
	return pc.disposed
}
