package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"collabcore/internal/collab/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadElements(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT element_id, value, op_type, updated_by, updated_at, deleted FROM diagram_elements WHERE diagram_id = \\$1").
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"element_id", "value", "op_type", "updated_by", "updated_at", "deleted"}).
			AddRow("S1", []byte(`{"x":1}`), "move", "alice", at, false).
			AddRow("S2", nil, "delete", "bob", at, true))

	states, err := NewElementRepository(db).LoadElements(context.Background(), "d1")
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "S1", states[0].ElementID)
	assert.JSONEq(t, `{"x":1}`, string(states[0].Value))
	assert.Equal(t, model.OpMove, states[0].Kind)
	assert.True(t, states[1].Deleted)
	assert.Nil(t, states[1].Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveElementsUpsertsInTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO diagram_elements").
		WithArgs("d1", "S1", `{"x":2}`, "move", "alice", at, false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO diagram_elements").
		WithArgs("d1", "S2", nil, "delete", "bob", at, true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = NewElementRepository(db).SaveElements(context.Background(), "d1", []model.ElementState{
		{ElementID: "S1", Value: json.RawMessage(`{"x":2}`), Kind: model.OpMove, UserID: "alice", Timestamp: at},
		{ElementID: "S2", Kind: model.OpDelete, UserID: "bob", Timestamp: at, Deleted: true},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveElementsRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO diagram_elements").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = NewElementRepository(db).SaveElements(context.Background(), "d1", []model.ElementState{
		{ElementID: "S1", Kind: model.OpMove, UserID: "alice", Timestamp: time.Now()},
	})
	assert.EqualError(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS diagram_elements").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, NewElementRepository(db).Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
