package packets

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packetdb"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

var sealedKey = packet.SealedKey(packet.UniversalID{AccountID: "acct", LocalID: "B-1"})

func TestWriteRecord_Upserts(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+packets\s*\(status,\s*account_id,\s*local_id,\s*data,\s*updated_at\).*ON\s+CONFLICT`).
		WithArgs("sealed", "acct", "B-1", []byte("doc")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.WriteRecord(context.Background(), sealedKey, []byte("doc")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRecord_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+packets`).WillReturnError(errors.New("db down"))

	err := repo.WriteRecord(context.Background(), sealedKey, []byte("doc"))
	require.ErrorContains(t, err, "db error: db down")
}

func TestReadRecord_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+data\s+FROM\s+packets\s+WHERE\s+status\s*=\s*\$1\s+AND\s+account_id\s*=\s*\$2\s+AND\s+local_id\s*=\s*\$3$`).
		WithArgs("sealed", "acct", "B-1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte("doc")))

	got, err := repo.ReadRecord(context.Background(), sealedKey)
	require.NoError(t, err)
	require.Equal(t, []byte("doc"), got)
}

func TestReadRecord_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+data\s+FROM\s+packets`).WillReturnError(sql.ErrNoRows)

	_, err := repo.ReadRecord(context.Background(), sealedKey)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestHasRecord(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+EXISTS`).
		WithArgs("sealed", "acct", "B-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.HasRecord(context.Background(), sealedKey)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDeleteRecord(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+packets\s+WHERE`).
		WithArgs("sealed", "acct", "B-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.DeleteRecord(context.Background(), sealedKey))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAllRecords(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^DELETE FROM packets$`).WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.DeleteAllRecords(context.Background()))
}

func TestVisitAccountRecords(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"status", "account_id", "local_id"}).
		AddRow("draft", "acct", "B-2").
		AddRow("sealed", "acct", "B-1").
		AddRow("sealed", "acct", "F-1")
	mock.ExpectQuery(`(?s)^SELECT\s+status,\s*account_id,\s*local_id\s+FROM\s+packets\s+WHERE\s+account_id\s*=\s*\$1`).
		WithArgs("acct").
		WillReturnRows(rows)

	var got []packet.DatabaseKey
	err := repo.VisitAccountRecords(context.Background(), "acct", func(k packet.DatabaseKey) error {
		got = append(got, k)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, packet.StatusDraft, got[0].Status)
	require.Equal(t, "F-1", got[2].UID.LocalID)
}

func TestVisitAllRecords_StopsOnCallbackError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"status", "account_id", "local_id"}).
		AddRow("sealed", "a", "B-1").
		AddRow("sealed", "b", "B-2")
	mock.ExpectQuery(`(?s)^SELECT\s+status,\s*account_id,\s*local_id\s+FROM\s+packets\s+ORDER\s+BY`).
		WillReturnRows(rows)

	stop := errors.New("stop")
	calls := 0
	err := repo.VisitAllRecords(context.Background(), func(packet.DatabaseKey) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, calls)
}

func TestVisitAllRecords_QueryError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+status`).WillReturnError(errors.New("boom"))

	err := repo.VisitAllRecords(context.Background(), func(packet.DatabaseKey) error { return nil })
	require.ErrorContains(t, err, "db error: boom")
}

func TestInTx_CommitsAllWrites(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+packets`).WithArgs("sealed", "acct", "F-1", []byte("data")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+packets`).WithArgs("sealed", "acct", "B-1", []byte("header")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := packetdb.Atomic(context.Background(), repo, func(ctx context.Context, tx packetdb.Database) error {
		if err := tx.WriteRecord(ctx, sealedKey.WithLocalID("F-1"), []byte("data")); err != nil {
			return err
		}
		return tx.WriteRecord(ctx, sealedKey, []byte("header"))
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_RollsBackOnError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+packets`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+packets`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(ctx context.Context, tx packetdb.Database) error {
		if err := tx.WriteRecord(ctx, sealedKey.WithLocalID("F-1"), []byte("data")); err != nil {
			return err
		}
		return tx.WriteRecord(ctx, sealedKey, []byte("header"))
	})
	require.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}
