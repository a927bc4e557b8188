package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"collabcore/internal/collab/model"
	"collabcore/pkg/logger"
)

const Schema = `
CREATE TABLE IF NOT EXISTS diagram_elements (
	diagram_id TEXT NOT NULL,
	element_id TEXT NOT NULL,
	value      JSONB,
	op_type    TEXT NOT NULL,
	updated_by TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	deleted    BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (diagram_id, element_id)
)`

type ElementRepository struct {
	DB *sql.DB
}

func NewElementRepository(db *sql.DB) *ElementRepository {
	return &ElementRepository{DB: db}
}

func (r *ElementRepository) Migrate(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, Schema)
	if err != nil {
		logger.Sugar.Errorf("Failed to migrate diagram_elements: %v", err)
	}
	return err
}

func (r *ElementRepository) LoadElements(ctx context.Context, diagramID string) ([]model.ElementState, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT element_id, value, op_type, updated_by, updated_at, deleted FROM diagram_elements WHERE diagram_id = $1`,
		diagramID)
	if err != nil {
		logger.Sugar.Errorf("Failed to load elements for diagram %s: %v", diagramID, err)
		return nil, err
	}
	defer rows.Close()

	var states []model.ElementState
	for rows.Next() {
		var e Element
		var value []byte
		if err := rows.Scan(&e.ElementID, &value, &e.OpType, &e.UpdatedBy, &e.UpdatedAt, &e.Deleted); err != nil {
			return nil, err
		}
		if len(value) > 0 {
			e.Value = json.RawMessage(value)
		}
		states = append(states, model.ElementState{
			ElementID: e.ElementID,
			Value:     e.Value,
			Kind:      model.OpKind(e.OpType),
			UserID:    e.UpdatedBy,
			Timestamp: e.UpdatedAt,
			Deleted:   e.Deleted,
		})
	}
	return states, rows.Err()
}

// SaveElements upserts states in one transaction.
func (r *ElementRepository) SaveElements(ctx context.Context, diagramID string, states []model.ElementState) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, st := range states {
		var value any
		if len(st.Value) > 0 {
			value = string(st.Value)
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO diagram_elements (diagram_id, element_id, value, op_type, updated_by, updated_at, deleted)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (diagram_id, element_id) DO UPDATE
			SET value = $3, op_type = $4, updated_by = $5, updated_at = $6, deleted = $7`,
			diagramID, st.ElementID, value, string(st.Kind), st.UserID, st.Timestamp, st.Deleted)
		if err != nil {
			logger.Sugar.Errorf("Failed to save element %s of diagram %s: %v", st.ElementID, diagramID, err)
			return err
		}
	}
	return tx.Commit()
}
