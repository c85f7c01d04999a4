package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/riverwalks/rw/internal/models"
	"github.com/riverwalks/rw/internal/queue"
)

// queueStore implements queue.Store on top of the pending_operations table.
type queueStore struct {
	db *DB
}

// QueueStore returns the sqlite-backed store for the pending-operation
// queue.
func (db *DB) QueueStore() queue.Store {
	return &queueStore{db: db}
}

func (s *queueStore) InsertOp(op *queue.Operation) error {
	return s.db.withWriteLock(func() error {
		var maxSeq sql.NullInt64
		if err := s.db.conn.QueryRow(`SELECT MAX(seq) FROM pending_operations`).Scan(&maxSeq); err != nil {
			return fmt.Errorf("next seq: %w", err)
		}
		op.Seq = maxSeq.Int64 + 1

		_, err := s.db.conn.Exec(
			`INSERT INTO pending_operations
			 (id, seq, entity_type, kind, method, url, payload, local_entity_id, depends_on, idempotency_key, status, attempts, last_error, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			op.ID, op.Seq, string(op.EntityType), string(op.Kind), op.Method, op.URL,
			string(op.Payload), op.LocalEntityID, op.DependsOn, op.IdempotencyKey,
			string(op.Status), op.Attempts, op.LastError, op.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert op: %w", err)
		}
		return nil
	})
}

const opColumns = `id, seq, entity_type, kind, method, url, payload, local_entity_id, depends_on, idempotency_key, status, attempts, last_error, created_at`

func scanOp(row interface{ Scan(...any) error }) (*queue.Operation, error) {
	var (
		op         queue.Operation
		entityType string
		kind       string
		payload    string
		status     string
		createdAt  time.Time
	)
	err := row.Scan(
		&op.ID, &op.Seq, &entityType, &kind, &op.Method, &op.URL, &payload,
		&op.LocalEntityID, &op.DependsOn, &op.IdempotencyKey, &status,
		&op.Attempts, &op.LastError, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	op.EntityType = models.EntityType(entityType)
	op.Kind = queue.Kind(kind)
	if payload != "" {
		op.Payload = json.RawMessage(payload)
	}
	op.Status = queue.Status(status)
	op.CreatedAt = createdAt
	return &op, nil
}

func (s *queueStore) GetOp(id string) (*queue.Operation, error) {
	row := s.db.conn.QueryRow(
		`SELECT `+opColumns+` FROM pending_operations WHERE id = ?`, id,
	)
	op, err := scanOp(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select op: %w", err)
	}
	return op, nil
}

func (s *queueStore) ListOps(f queue.Filter) ([]queue.Operation, error) {
	query := `SELECT ` + opColumns + ` FROM pending_operations`
	var (
		conds []string
		args  []any
	)
	if f.EntityType != "" {
		conds = append(conds, "entity_type = ?")
		args = append(args, string(f.EntityType))
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ops: %w", err)
	}
	defer rows.Close()

	var ops []queue.Operation
	for rows.Next() {
		op, err := scanOp(rows)
		if err != nil {
			return nil, fmt.Errorf("scan op: %w", err)
		}
		ops = append(ops, *op)
	}
	return ops, rows.Err()
}

func (s *queueStore) UpdateOp(op queue.Operation) error {
	return s.db.withWriteLock(func() error {
		res, err := s.db.conn.Exec(
			`UPDATE pending_operations
			 SET entity_type = ?, kind = ?, method = ?, url = ?, payload = ?,
			     local_entity_id = ?, depends_on = ?, idempotency_key = ?,
			     status = ?, attempts = ?, last_error = ?
			 WHERE id = ?`,
			string(op.EntityType), string(op.Kind), op.Method, op.URL, string(op.Payload),
			op.LocalEntityID, op.DependsOn, op.IdempotencyKey,
			string(op.Status), op.Attempts, op.LastError,
			op.ID,
		)
		if err != nil {
			return fmt.Errorf("update op: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("op %s not found", op.ID)
		}
		return nil
	})
}

func (s *queueStore) DeleteOp(id string) error {
	return s.db.withWriteLock(func() error {
		_, err := s.db.conn.Exec(`DELETE FROM pending_operations WHERE id = ?`, id)
		return err
	})
}
