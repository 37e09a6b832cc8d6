package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dmitrijs2005/bulletinkeeper/internal/client/client"
	"github.com/dmitrijs2005/bulletinkeeper/internal/client/store"
	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/logging"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packetdb"
	"github.com/dmitrijs2005/bulletinkeeper/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newStore(t *testing.T, name string) *store.Store {
	t.Helper()
	s, err := store.New(packetdb.NewMemoryDatabase(), newProvider(t, name), nil, logging.Discard())
	require.NoError(t, err)
	return s
}

func TestRetrieveBulletins_SkipsMissing(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer()
	author := newProvider(t, "field-office")
	b1 := srv.publish(t, author, "one")
	b2 := srv.publish(t, author, "two")
	b3 := srv.publish(t, author, "three")
	missing := packet.UniversalID{AccountID: author.PublicKeyString(), LocalID: "B-missing"}

	st := newStore(t, "hq")
	folder := st.CreateRetrievedFolder(true)
	svc := NewSyncService(st, srv, 256, logging.Discard())

	code, err := svc.RetrieveBulletins(ctx, []packet.UniversalID{b1, b2, missing, b3}, folder.Name, nil).Wait()
	require.NoError(t, err)
	assert.Equal(t, transfer.Incomplete, code)

	got := st.FindFolder(folder.Name)
	require.NotNil(t, got)
	assert.Equal(t, []packet.UniversalID{b1, b2, b3}, got.IDs)
	for _, uid := range []packet.UniversalID{b1, b2, b3} {
		has, err := st.HasBulletin(ctx, uid)
		require.NoError(t, err)
		assert.True(t, has)
	}
}

func TestRetrieveBulletins_EmptyListNoTraffic(t *testing.T) {
	srv := newFakeServer()
	st := newStore(t, "hq")
	svc := NewSyncService(st, srv, 0, logging.Discard())

	code, err := svc.RetrieveBulletins(context.Background(), nil, "no such folder", nil).Wait()
	require.NoError(t, err)
	assert.Equal(t, transfer.OK, code)
	assert.Zero(t, srv.callCount(transfer.CmdGetBulletinChunk))
}

func TestRetrieveBulletins_UnknownFolder(t *testing.T) {
	srv := newFakeServer()
	uid := srv.publish(t, newProvider(t, "author"), "x")
	svc := NewSyncService(newStore(t, "hq"), srv, 0, logging.Discard())

	_, err := svc.RetrieveBulletins(context.Background(), []packet.UniversalID{uid}, "nope", nil).Wait()
	assert.ErrorIs(t, err, common.ErrFolderNotFound)
}

func TestRetrieveBulletins_AlreadyPresentSkipsNetwork(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer()
	uid := srv.publish(t, newProvider(t, "author"), "x")
	st := newStore(t, "hq")
	svc := NewSyncService(st, srv, 0, logging.Discard())

	_, err := st.ImportArchive(ctx, srv.archive(uid.LocalID))
	require.NoError(t, err)

	code, err := svc.RetrieveBulletins(ctx, []packet.UniversalID{uid}, store.FolderDraft, nil).Wait()
	require.NoError(t, err)
	assert.Equal(t, transfer.OK, code)
	assert.Zero(t, srv.callCount(transfer.CmdGetBulletinChunk))
	assert.True(t, st.FindFolder(store.FolderDraft).Contains(uid))
}

func TestRetrieveBulletins_NoServer(t *testing.T) {
	srv := newFakeServer()
	uid := srv.publish(t, newProvider(t, "author"), "x")
	srv.err = client.ErrUnavailable
	svc := NewSyncService(newStore(t, "hq"), srv, 0, logging.Discard())

	code, err := svc.RetrieveBulletins(context.Background(), []packet.UniversalID{uid, uid}, store.FolderDraft, nil).Wait()
	require.NoError(t, err)
	assert.Equal(t, transfer.NoServer, code)
	assert.Equal(t, 1, srv.callCount(transfer.CmdGetBulletinChunk))
}

func TestRetrieveBulletins_WrongBulletinRejected(t *testing.T) {
	srv := newFakeServer()
	author := newProvider(t, "author")
	want := srv.publish(t, author, "real")
	decoy := srv.publish(t, author, "decoy")
	srv.archives[want.LocalID] = srv.archives[decoy.LocalID]

	st := newStore(t, "hq")
	svc := NewSyncService(st, srv, 0, logging.Discard())
	code, err := svc.RetrieveBulletins(context.Background(), []packet.UniversalID{want}, store.FolderDraft, nil).Wait()
	require.NoError(t, err)
	assert.Equal(t, transfer.Incomplete, code)

	has, err := st.HasBulletin(context.Background(), decoy)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRetrieveBulletins_AsyncWithProgress(t *testing.T) {
	srv := newFakeServer()
	author := newProvider(t, "author")
	ids := []packet.UniversalID{srv.publish(t, author, "a"), srv.publish(t, author, "b")}
	st := newStore(t, "hq")
	svc := NewSyncService(st, srv, 0, logging.Discard())

	var (
		mu    sync.Mutex
		steps []Progress
	)
	task := svc.RetrieveBulletins(context.Background(), ids, store.FolderDraft, func(p Progress) {
		mu.Lock()
		steps = append(steps, p)
		mu.Unlock()
	})
	code, err := task.Wait()
	require.NoError(t, err)
	assert.Equal(t, transfer.OK, code)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, steps, 2)
	assert.Equal(t, Progress{Label: ids[1].LocalID, Done: 2, Total: 2}, steps[1])
}

func TestRetrieveBulletins_Cancelled(t *testing.T) {
	srv := newFakeServer()
	uid := srv.publish(t, newProvider(t, "author"), "a")
	svc := NewSyncService(newStore(t, "hq"), srv, 0, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code, err := svc.RetrieveBulletins(ctx, []packet.UniversalID{uid}, store.FolderDraft, func(Progress) {}).Wait()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, transfer.Incomplete, code)
	assert.Zero(t, srv.callCount(transfer.CmdGetBulletinChunk))
}

func TestTask_CancelStopsBetweenUnits(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	task := start(context.Background(), func(Progress) {}, func(ctx context.Context) (string, error) {
		close(started)
		<-release
		return "", ctx.Err()
	})
	<-started
	task.Cancel()
	close(release)

	_, err := task.Wait()
	assert.ErrorIs(t, err, context.Canceled)
	select {
	case <-task.Done():
	default:
		t.Fatal("task not done after Wait")
	}
}

func TestTask_SynchronousWithoutSink(t *testing.T) {
	ran := false
	task := start(context.Background(), nil, func(context.Context) (string, error) {
		ran = true
		return transfer.OK, nil
	})
	assert.True(t, ran)
	code, err := task.Wait()
	require.NoError(t, err)
	assert.Equal(t, transfer.OK, code)
}

func TestUploadBulletin(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer()
	st := newStore(t, "author")
	b := st.CreateBulletin()
	b.Set("title", "upload me")
	b.SetSealed()
	require.NoError(t, st.SaveBulletin(ctx, b))

	var last Progress
	var mu sync.Mutex
	svc := NewSyncService(st, srv, 100, logging.Discard())
	code, err := svc.UploadBulletin(ctx, b.UniversalID(), func(p Progress) {
		mu.Lock()
		last = p
		mu.Unlock()
	}).Wait()
	require.NoError(t, err)
	assert.Equal(t, transfer.OK, code)

	want, err := exportArchive(ctx, st, b.UniversalID())
	require.NoError(t, err)
	assert.Equal(t, want, srv.archive(b.LocalID()))
	assert.Greater(t, srv.callCount(transfer.CmdPutBulletinChunk), 1)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, last.Done, last.Total)
}

func TestUploadBulletin_Unknown(t *testing.T) {
	svc := NewSyncService(newStore(t, "author"), newFakeServer(), 0, logging.Discard())
	_, err := svc.UploadBulletin(context.Background(), packet.UniversalID{AccountID: "x", LocalID: "B-x"}, nil).Wait()
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestBackgroundUpload(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer()
	st := newStore(t, "author")
	svc := NewSyncService(st, srv, 0, logging.Discard())

	code, err := svc.BackgroundUpload(ctx, nil).Wait()
	require.NoError(t, err)
	assert.Equal(t, "", code)

	sealed := st.CreateBulletin()
	sealed.SetSealed()
	require.NoError(t, st.SaveBulletin(ctx, sealed))
	require.NoError(t, st.AddBulletinToFolder(store.FolderOutbox, sealed.UniversalID()))

	draft := st.CreateBulletin()
	require.NoError(t, st.SaveBulletin(ctx, draft))
	require.NoError(t, st.AddBulletinToFolder(store.FolderDraftOutbox, draft.UniversalID()))

	code, err = svc.BackgroundUpload(ctx, nil).Wait()
	require.NoError(t, err)
	assert.Equal(t, transfer.OK, code)
	assert.False(t, st.FindFolder(store.FolderOutbox).Contains(sealed.UniversalID()))
	assert.True(t, st.FindFolder(store.FolderSent).Contains(sealed.UniversalID()))

	code, err = svc.BackgroundUpload(ctx, nil).Wait()
	require.NoError(t, err)
	assert.Equal(t, transfer.OK, code)
	assert.Zero(t, st.FindFolder(store.FolderDraftOutbox).Count())
	assert.NotNil(t, srv.archive(draft.LocalID()))
}

func TestBackgroundUpload_DuplicateCountsAsSent(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer()
	srv.respond[transfer.CmdPutBulletinChunk] = transfer.Response{Code: transfer.Duplicate}
	st := newStore(t, "author")
	b := st.CreateBulletin()
	b.SetSealed()
	require.NoError(t, st.SaveBulletin(ctx, b))
	require.NoError(t, st.AddBulletinToFolder(store.FolderOutbox, b.UniversalID()))

	code, err := NewSyncService(st, srv, 0, logging.Discard()).BackgroundUpload(ctx, nil).Wait()
	require.NoError(t, err)
	assert.Equal(t, transfer.Duplicate, code)
	assert.True(t, st.FindFolder(store.FolderSent).Contains(b.UniversalID()))
}

func TestBackgroundUpload_FailureKeepsPending(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer()
	srv.respond[transfer.CmdPutBulletinChunk] = transfer.Response{Code: transfer.NotAuthorized}
	st := newStore(t, "author")
	b := st.CreateBulletin()
	b.SetSealed()
	require.NoError(t, st.SaveBulletin(ctx, b))
	require.NoError(t, st.AddBulletinToFolder(store.FolderOutbox, b.UniversalID()))

	code, err := NewSyncService(st, srv, 0, logging.Discard()).BackgroundUpload(ctx, nil).Wait()
	require.NoError(t, err)
	assert.Equal(t, transfer.NotAuthorized, code)
	assert.True(t, st.FindFolder(store.FolderOutbox).Contains(b.UniversalID()))
}

func TestBackgroundUpload_MissingBulletinDropped(t *testing.T) {
	st := newStore(t, "author")
	ghost := packet.UniversalID{AccountID: st.AccountID(), LocalID: "B-ghost"}
	require.NoError(t, st.AddBulletinToFolder(store.FolderOutbox, ghost))

	code, err := NewSyncService(st, newFakeServer(), 0, logging.Discard()).BackgroundUpload(context.Background(), nil).Wait()
	require.NoError(t, err)
	assert.Equal(t, transfer.NotFound, code)
	assert.Zero(t, st.FindFolder(store.FolderOutbox).Count())
}

func TestBackgroundUpload_NoServer(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer()
	srv.err = errors.Join(client.ErrUnavailable, errors.New("connection refused"))
	st := newStore(t, "author")
	b := st.CreateBulletin()
	b.SetSealed()
	require.NoError(t, st.SaveBulletin(ctx, b))
	require.NoError(t, st.AddBulletinToFolder(store.FolderOutbox, b.UniversalID()))

	code, err := NewSyncService(st, srv, 0, logging.Discard()).BackgroundUpload(ctx, nil).Wait()
	require.NoError(t, err)
	assert.Equal(t, transfer.NoServer, code)
	assert.True(t, st.FindFolder(store.FolderOutbox).Contains(b.UniversalID()))
}
