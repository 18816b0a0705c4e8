package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/storefrontlabs/adminflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// PurgeTerminal deletes terminal workflows completed before cutoff together
// with their events.
func (s *LibSQLStore) PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin purge: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM events WHERE workflow_id IN (
		   SELECT id FROM workflows
		   WHERE status IN ('completed', 'failed') AND completed_at < ?)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM workflows
		 WHERE status IN ('completed', 'failed') AND completed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge workflows: %w", err)
	}
	removed, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit purge: %w", err)
	}
	return int(removed), nil
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Workflow records ---

func (s *LibSQLStore) CreateWorkflow(ctx context.Context, rec *schema.WorkflowRecord) error {
	plan, validation, pending, execution, response, err := marshalSubRecords(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, session_id, trace_id, message, step, status,
		   plan, validation, pending_action, execution, response,
		   created_at, updated_at, expires_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.WorkflowID, rec.SessionID, nullStr(rec.TraceID), rec.Message,
		string(rec.Step), string(rec.Status),
		plan, validation, pending, execution, response,
		timeOrNow(rec.CreatedAt), timeOrNow(rec.UpdatedAt),
		nullTime(rec.ExpiresAt), nullTime(rec.CompletedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return schema.NewErrorf(schema.ErrCodeConflict, "workflow %s already exists", rec.WorkflowID)
		}
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, workflowID string) (*schema.WorkflowRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, trace_id, message, step, status,
		   plan, validation, pending_action, execution, response,
		   created_at, updated_at, expires_at, completed_at
		 FROM workflows WHERE id = ?`, workflowID)
	rec, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", workflowID)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *LibSQLStore) SaveWorkflow(ctx context.Context, rec *schema.WorkflowRecord) error {
	plan, validation, pending, execution, response, err := marshalSubRecords(rec)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET step = ?, status = ?, plan = ?, validation = ?,
		   pending_action = ?, execution = ?, response = ?,
		   updated_at = ?, expires_at = ?, completed_at = ?
		 WHERE id = ?`,
		string(rec.Step), string(rec.Status), plan, validation, pending, execution, response,
		time.Now().UTC(), nullTime(rec.ExpiresAt), nullTime(rec.CompletedAt),
		rec.WorkflowID,
	)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	return checkRowsAffected(res, "workflow", rec.WorkflowID)
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.WorkflowRecord, error) {
	query := `SELECT id, session_id, trace_id, message, step, status,
		   plan, validation, pending_action, execution, response,
		   created_at, updated_at, expires_at, completed_at
		 FROM workflows WHERE 1=1`
	var args []any
	if filter.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, filter.SessionID)
	}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	if filter.ExpiresBefore != nil {
		query += ` AND expires_at IS NOT NULL AND expires_at < ?`
		args = append(args, *filter.ExpiresBefore)
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.Since)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var out []*schema.WorkflowRecord
	for rows.Next() {
		rec, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, workflowID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, workflowID)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if err := checkRowsAffected(res, "workflow", workflowID); err != nil {
		return err
	}
	_, _ = s.db.ExecContext(ctx, `DELETE FROM events WHERE workflow_id = ?`, workflowID)
	return nil
}

// --- Audit log ---

// AppendEvent appends an event with a monotonically increasing per-workflow
// sequence. A single transaction guards the sequence read and insert; the
// store runs with one open connection, so writers never interleave.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE workflow_id = ?`, event.WorkflowID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (workflow_id, session_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.WorkflowID, nullStr(event.SessionID), event.Type,
		nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetEvents(ctx context.Context, workflowID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, session_id, event_type, payload, timestamp, sequence
		 FROM events WHERE workflow_id = ? AND sequence > ? ORDER BY sequence ASC`,
		workflowID, since)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		ev := &Event{}
		var sessionID, payload sql.NullString
		if err := rows.Scan(&ev.ID, &ev.WorkflowID, &sessionID, &ev.Type, &payload, &ev.Timestamp, &ev.Sequence); err != nil {
			return nil, err
		}
		ev.SessionID = sessionID.String
		if payload.Valid {
			ev.Payload = []byte(payload.String)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// --- Products ---

func (s *LibSQLStore) GetProduct(ctx context.Context, sku string) (*schema.Product, error) {
	p := &schema.Product{}
	var description sql.NullString
	var active, promoted int
	err := s.db.QueryRowContext(ctx,
		`SELECT sku, name, description, price, active, promoted, created_at, updated_at
		 FROM products WHERE sku = ?`, sku,
	).Scan(&p.SKU, &p.Name, &description, &p.Price, &active, &promoted, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("product", sku)
	}
	if err != nil {
		return nil, err
	}
	p.Description = description.String
	p.Active = active != 0
	p.Promoted = promoted != 0
	return p, nil
}

func (s *LibSQLStore) PutProduct(ctx context.Context, p *schema.Product) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (sku, name, description, price, active, promoted, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(sku) DO UPDATE SET name=excluded.name, description=excluded.description,
		   price=excluded.price, active=excluded.active, promoted=excluded.promoted,
		   updated_at=excluded.updated_at`,
		p.SKU, p.Name, nullStr(p.Description), p.Price, boolInt(p.Active), boolInt(p.Promoted),
		timeOrNow(p.CreatedAt), time.Now().UTC(),
	)
	return err
}

func (s *LibSQLStore) ListProducts(ctx context.Context, filter ProductFilter) ([]*schema.Product, error) {
	query := `SELECT sku, name, description, price, active, promoted, created_at, updated_at
		 FROM products WHERE 1=1`
	var args []any
	if filter.ActiveOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY sku ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []*schema.Product
	for rows.Next() {
		p := &schema.Product{}
		var description sql.NullString
		var active, promoted int
		if err := rows.Scan(&p.SKU, &p.Name, &description, &p.Price, &active, &promoted, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Description = description.String
		p.Active = active != 0
		p.Promoted = promoted != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Orders ---

func (s *LibSQLStore) GetOrder(ctx context.Context, orderNumber string) (*schema.Order, error) {
	o := &schema.Order{}
	var status string
	var email sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT order_number, status, grand_total, refunded_total, customer_email, created_at, updated_at
		 FROM orders WHERE order_number = ?`, orderNumber,
	).Scan(&o.OrderNumber, &status, &o.GrandTotal, &o.RefundedTotal, &email, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("order", orderNumber)
	}
	if err != nil {
		return nil, err
	}
	o.Status = schema.OrderStatus(status)
	o.CustomerEmail = email.String
	return o, nil
}

func (s *LibSQLStore) PutOrder(ctx context.Context, o *schema.Order) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (order_number, status, grand_total, refunded_total, customer_email, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(order_number) DO UPDATE SET status=excluded.status,
		   grand_total=excluded.grand_total, refunded_total=excluded.refunded_total,
		   customer_email=excluded.customer_email, updated_at=excluded.updated_at`,
		o.OrderNumber, string(o.Status), o.GrandTotal, o.RefundedTotal,
		nullStr(o.CustomerEmail), timeOrNow(o.CreatedAt), time.Now().UTC(),
	)
	return err
}

func (s *LibSQLStore) ListOrders(ctx context.Context, filter OrderFilter) ([]*schema.Order, error) {
	query := `SELECT order_number, status, grand_total, refunded_total, customer_email, created_at, updated_at
		 FROM orders WHERE 1=1`
	var args []any
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	query += ` ORDER BY order_number ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []*schema.Order
	for rows.Next() {
		o := &schema.Order{}
		var status string
		var email sql.NullString
		if err := rows.Scan(&o.OrderNumber, &status, &o.GrandTotal, &o.RefundedTotal, &email, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Status = schema.OrderStatus(status)
		o.CustomerEmail = email.String
		out = append(out, o)
	}
	return out, rows.Err()
}

// --- Scan and marshal helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*schema.WorkflowRecord, error) {
	rec := &schema.WorkflowRecord{}
	var traceID, plan, validation, pending, execution, response sql.NullString
	var step, status string
	var expiresAt, completedAt sql.NullTime

	err := row.Scan(&rec.WorkflowID, &rec.SessionID, &traceID, &rec.Message, &step, &status,
		&plan, &validation, &pending, &execution, &response,
		&rec.CreatedAt, &rec.UpdatedAt, &expiresAt, &completedAt)
	if err != nil {
		return nil, err
	}
	rec.TraceID = traceID.String
	rec.Step = schema.Step(step)
	rec.Status = schema.Status(status)
	if err := unmarshalInto(plan, &rec.Plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	if err := unmarshalInto(validation, &rec.Validation); err != nil {
		return nil, fmt.Errorf("unmarshal validation: %w", err)
	}
	if err := unmarshalInto(pending, &rec.PendingAction); err != nil {
		return nil, fmt.Errorf("unmarshal pending_action: %w", err)
	}
	if err := unmarshalInto(execution, &rec.Execution); err != nil {
		return nil, fmt.Errorf("unmarshal execution: %w", err)
	}
	if err := unmarshalInto(response, &rec.Response); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if expiresAt.Valid {
		rec.ExpiresAt = &expiresAt.Time
	}
	if completedAt.Valid {
		rec.CompletedAt = &completedAt.Time
	}
	return rec, nil
}

func marshalSubRecords(rec *schema.WorkflowRecord) (plan, validation, pending, execution, response any, err error) {
	if plan, err = marshalOrNil(rec.Plan); err != nil {
		return
	}
	if validation, err = marshalOrNil(rec.Validation); err != nil {
		return
	}
	if pending, err = marshalOrNil(rec.PendingAction); err != nil {
		return
	}
	if execution, err = marshalOrNil(rec.Execution); err != nil {
		return
	}
	response, err = marshalOrNil(rec.Response)
	return
}

// marshalOrNil marshals v unless it is a typed nil pointer.
func marshalOrNil[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func unmarshalInto[T any](ns sql.NullString, target **T) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	v := new(T)
	if err := json.Unmarshal([]byte(ns.String), v); err != nil {
		return err
	}
	*target = v
	return nil
}

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r []byte) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
