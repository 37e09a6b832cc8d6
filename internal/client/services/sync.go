package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/bulletinkeeper/internal/bulletin"
	"github.com/dmitrijs2005/bulletinkeeper/internal/client/store"
	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/logging"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
	"github.com/dmitrijs2005/bulletinkeeper/internal/transfer"
)

// SyncService moves bulletins between the local store and the server.
//
// Contract:
//   - UploadBulletin: send one bulletin in chunks; the result code is the
//     server's final answer.
//   - BackgroundUpload: upload the first pending bulletin of the outboxes;
//     the result code is "" when nothing is pending.
//   - RetrieveBulletins: download the listed bulletins into a folder; ids
//     the server cannot supply make the result INCOMPLETE.
//
// Every method runs asynchronously when sink is non-nil and synchronously
// otherwise (see Task).
type SyncService interface {
	UploadBulletin(ctx context.Context, uid packet.UniversalID, sink ProgressSink) *Task
	BackgroundUpload(ctx context.Context, sink ProgressSink) *Task
	RetrieveBulletins(ctx context.Context, ids []packet.UniversalID, folder string, sink ProgressSink) *Task
}

type syncService struct {
	store     *store.Store
	caller    transfer.Caller
	chunkSize int
	log       logging.Logger
}

// NewSyncService binds a store to a transport. chunkSize is capped at
// transfer.MaxChunkSize.
func NewSyncService(st *store.Store, caller transfer.Caller, chunkSize int, log logging.Logger) SyncService {
	return &syncService{
		store:     st,
		caller:    caller,
		chunkSize: transfer.CapChunkSize(chunkSize),
		log:       log.With("module", "sync"),
	}
}

func (s *syncService) UploadBulletin(ctx context.Context, uid packet.UniversalID, sink ProgressSink) *Task {
	return start(ctx, sink, func(ctx context.Context) (string, error) {
		return s.upload(ctx, uid, sink)
	})
}

func (s *syncService) upload(ctx context.Context, uid packet.UniversalID, sink ProgressSink) (string, error) {
	key, err := s.store.HeaderKey(ctx, uid)
	if err != nil {
		return "", err
	}
	var archive bytes.Buffer
	if err := s.store.ExportArchive(ctx, uid, &archive); err != nil {
		return "", fmt.Errorf("failed to export bulletin[%s]: %w", uid, err)
	}
	data := archive.Bytes()

	put := func(ctx context.Context, offset int64, chunk []byte, total int64) (transfer.Response, error) {
		return transfer.Invoke(ctx, s.caller, s.store.Crypto(), transfer.CmdPutBulletinChunk,
			uid.AccountID, uid.LocalID, total, offset, int64(len(chunk)),
			base64.StdEncoding.EncodeToString(chunk))
	}
	var progress func(sent, total int64)
	if sink != nil {
		progress = func(sent, total int64) {
			sink(Progress{Label: uid.LocalID, Done: sent, Total: total})
		}
	}

	code, err := resultCode(transfer.Upload(ctx, data, s.chunkSize, put, progress))
	if err != nil {
		return "", err
	}
	s.log.Info(ctx, "bulletin uploaded", "bulletin", uid.String(), "status", string(key.Status), "result", code)
	return code, nil
}

func (s *syncService) BackgroundUpload(ctx context.Context, sink ProgressSink) *Task {
	return start(ctx, sink, func(ctx context.Context) (string, error) {
		return s.backgroundUpload(ctx, sink)
	})
}

// nextPending returns the first bulletin waiting in the sealed outbox,
// then in the draft outbox.
func (s *syncService) nextPending() (packet.UniversalID, string, bool) {
	for _, name := range []string{store.FolderOutbox, store.FolderDraftOutbox} {
		if f := s.store.FindFolder(name); f != nil && f.Count() > 0 {
			return f.IDs[0], name, true
		}
	}
	return packet.UniversalID{}, "", false
}

func (s *syncService) backgroundUpload(ctx context.Context, sink ProgressSink) (string, error) {
	uid, folder, ok := s.nextPending()
	if !ok {
		return "", nil
	}

	code, err := s.upload(ctx, uid, sink)
	if errors.Is(err, common.ErrNotFound) {
		s.log.Warn(ctx, "pending bulletin missing, dropping", "bulletin", uid.String(), "folder", folder)
		code, err = transfer.NotFound, s.store.RemoveBulletinFromFolder(folder, uid)
	}
	if err != nil {
		return "", err
	}
	if code != transfer.OK && code != transfer.Duplicate {
		return code, nil
	}

	if folder == store.FolderOutbox {
		err = s.store.MoveBulletin(uid, store.FolderOutbox, store.FolderSent)
	} else {
		err = s.store.RemoveBulletinFromFolder(store.FolderDraftOutbox, uid)
	}
	if err != nil {
		return "", err
	}
	if err := s.store.SaveFolders(ctx); err != nil {
		return "", err
	}
	return code, nil
}

func (s *syncService) RetrieveBulletins(ctx context.Context, ids []packet.UniversalID, folder string, sink ProgressSink) *Task {
	return start(ctx, sink, func(ctx context.Context) (string, error) {
		return s.retrieve(ctx, ids, folder, sink)
	})
}

func (s *syncService) retrieve(ctx context.Context, ids []packet.UniversalID, folder string, sink ProgressSink) (string, error) {
	if len(ids) == 0 {
		return transfer.OK, nil
	}
	if s.store.FindFolder(folder) == nil {
		return "", fmt.Errorf("%w: %q", common.ErrFolderNotFound, folder)
	}

	result := transfer.OK
	for i, uid := range ids {
		if err := ctx.Err(); err != nil {
			return transfer.Incomplete, err
		}

		has, err := s.store.HasBulletin(ctx, uid)
		if err != nil {
			return "", err
		}
		if !has {
			code, err := s.retrieveOne(ctx, uid)
			if err != nil {
				return "", err
			}
			if code == transfer.NoServer {
				return code, nil
			}
			if code != transfer.OK {
				result = transfer.Incomplete
			}
			has = code == transfer.OK
		}
		if has {
			if err := s.store.AddBulletinToFolder(folder, uid); err != nil {
				return "", err
			}
		}
		if sink != nil {
			sink(Progress{Label: uid.LocalID, Done: int64(i + 1), Total: int64(len(ids))})
		}
	}

	if err := s.store.SaveFolders(ctx); err != nil {
		return "", err
	}
	return result, nil
}

// retrieveOne downloads and imports one bulletin. Server failures and
// damaged data come back as result codes; only transport and local
// storage failures are errors.
func (s *syncService) retrieveOne(ctx context.Context, uid packet.UniversalID) (string, error) {
	fetch := func(ctx context.Context, offset int64, maxChunk int) (transfer.Response, error) {
		return transfer.Invoke(ctx, s.caller, s.store.Crypto(), transfer.CmdGetBulletinChunk,
			uid.AccountID, uid.LocalID, offset, int64(maxChunk))
	}

	var buf bytes.Buffer
	if _, err := transfer.Download(ctx, fetch, s.chunkSize, &buf); err != nil {
		code, err := resultCode("", err)
		if err == nil {
			s.log.Warn(ctx, "bulletin not retrieved", "bulletin", uid.String(), "result", code)
		}
		return code, err
	}

	h, err := bulletin.PeekArchiveHeader(buf.Bytes())
	if err != nil || h.UID != uid {
		s.log.Warn(ctx, "server sent a different bulletin", "bulletin", uid.String())
		return transfer.InvalidData, nil
	}
	if _, err := s.store.ImportArchive(ctx, buf.Bytes()); err != nil {
		if errors.Is(err, common.ErrDamagedArchive) {
			s.log.Warn(ctx, "retrieved archive rejected", "bulletin", uid.String(), "error", err)
			return transfer.InvalidData, nil
		}
		return "", err
	}
	return transfer.OK, nil
}
