package packets

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packetdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

var _ packetdb.Database = (*SQLiteRepository)(nil)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE packets (
  status     TEXT    NOT NULL,
  account_id TEXT    NOT NULL,
  local_id   TEXT    NOT NULL,
  data       BLOB    NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (status, account_id, local_id)
);`)
	require.NoError(t, err)
	return db
}

func key(status packet.Status, account, local string) packet.DatabaseKey {
	return packet.DatabaseKey{UID: packet.UniversalID{AccountID: account, LocalID: local}, Status: status}
}

func TestWriteRead_UpsertAndNotFound(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	k := key(packet.StatusDraft, "a", "B-1")

	_, err := r.ReadRecord(ctx, k)
	require.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, r.WriteRecord(ctx, k, []byte("one")))
	require.NoError(t, r.WriteRecord(ctx, k, []byte("two")))

	got, err := r.ReadRecord(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)

	_, err = r.ReadRecord(ctx, key(packet.StatusSealed, "a", "B-1"))
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestHasAndDelete_Idempotent(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	k := key(packet.StatusSealed, "a", "F-1")

	require.NoError(t, r.WriteRecord(ctx, k, []byte("x")))
	ok, err := r.HasRecord(ctx, k)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, r.DeleteRecord(ctx, k))
	require.NoError(t, r.DeleteRecord(ctx, k))
	ok, err = r.HasRecord(ctx, k)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVisit_OrderedAndFiltered(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	keys := []packet.DatabaseKey{
		key(packet.StatusSealed, "b", "B-2"),
		key(packet.StatusDraft, "b", "B-1"),
		key(packet.StatusDraft, "a", "F-1"),
		key(packet.StatusDraft, "a", "B-1"),
	}
	for _, k := range keys {
		require.NoError(t, r.WriteRecord(ctx, k, []byte("x")))
	}

	var all []packet.DatabaseKey
	require.NoError(t, r.VisitAllRecords(ctx, func(k packet.DatabaseKey) error {
		all = append(all, k)
		return nil
	}))
	assert.Equal(t, []packet.DatabaseKey{keys[3], keys[2], keys[1], keys[0]}, all)

	var onlyB []packet.DatabaseKey
	require.NoError(t, r.VisitAccountRecords(ctx, "b", func(k packet.DatabaseKey) error {
		onlyB = append(onlyB, k)
		return nil
	}))
	assert.Equal(t, []packet.DatabaseKey{keys[1], keys[0]}, onlyB)

	heads, err := packetdb.HeaderKeys(ctx, r, "a", packet.StatusDraft)
	require.NoError(t, err)
	assert.Equal(t, []packet.DatabaseKey{keys[3]}, heads)
}

func TestVisit_CallbackMayWriteAndStop(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	require.NoError(t, r.WriteRecord(ctx, key(packet.StatusDraft, "a", "B-1"), []byte("x")))
	require.NoError(t, r.WriteRecord(ctx, key(packet.StatusDraft, "a", "B-2"), []byte("x")))

	stop := errors.New("stop")
	n := 0
	err := r.VisitAllRecords(ctx, func(k packet.DatabaseKey) error {
		n++
		if err := r.WriteRecord(ctx, k.WithLocalID("F-"+k.UID.LocalID), []byte("y")); err != nil {
			return err
		}
		return stop
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
}

func TestDeleteAllRecords(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	require.NoError(t, r.WriteRecord(ctx, key(packet.StatusDraft, "a", "B-1"), []byte("x")))
	require.NoError(t, r.DeleteAllRecords(ctx))

	n := 0
	require.NoError(t, r.VisitAllRecords(ctx, func(packet.DatabaseKey) error { n++; return nil }))
	assert.Zero(t, n)
}

func TestInTx(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	header := key(packet.StatusSealed, "a", "B-1")
	data := key(packet.StatusSealed, "a", "F-1")

	boom := errors.New("boom")
	err := packetdb.Atomic(ctx, r, func(ctx context.Context, tx packetdb.Database) error {
		require.NoError(t, tx.WriteRecord(ctx, data, []byte("data")))
		return boom
	})
	require.ErrorIs(t, err, boom)
	ok, err := r.HasRecord(ctx, data)
	require.NoError(t, err)
	assert.False(t, ok, "rolled back")

	err = packetdb.Atomic(ctx, r, func(ctx context.Context, tx packetdb.Database) error {
		if err := tx.WriteRecord(ctx, data, []byte("data")); err != nil {
			return err
		}
		return tx.WriteRecord(ctx, header, []byte("header"))
	})
	require.NoError(t, err)
	got, err := r.ReadRecord(ctx, header)
	require.NoError(t, err)
	assert.Equal(t, []byte("header"), got)
}
