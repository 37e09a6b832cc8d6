package services

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/bulletinkeeper/internal/bulletin"
	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/cryptox"
	"github.com/dmitrijs2005/bulletinkeeper/internal/logging"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packetdb"
	"github.com/dmitrijs2005/bulletinkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/bulletinkeeper/internal/server/staging"
	"github.com/dmitrijs2005/bulletinkeeper/internal/serverinfo"
	"github.com/dmitrijs2005/bulletinkeeper/internal/syncx"
	"github.com/dmitrijs2005/bulletinkeeper/internal/transfer"
)

// Options tune a BulletinService.
type Options struct {
	// MagicWord grants upload rights; empty disables self-service grants.
	MagicWord string
	// MaxChunkSize caps download chunks below transfer.MaxChunkSize.
	MaxChunkSize int
	// MaxUploadSize bounds a whole uploaded archive; 0 means no bound.
	MaxUploadSize int64
	ServerInfoTTL time.Duration
	Version       string
	Compliance    string
}

// BulletinService answers client commands against one packet database.
type BulletinService struct {
	db       packetdb.Database
	accounts accounts.Repository
	staging  staging.Staging
	crypto   cryptox.Provider
	opts     Options
	metrics  *Metrics
	log      logging.Logger

	// serializes read-modify-write of one staged upload
	uploads syncx.KeyedMutex
}

type handlerFunc func(ctx context.Context, account string, args transfer.Args) (string, []any, error)

// NewBulletinService builds the command core. c holds the server's own key
// pair; metrics may be nil.
func NewBulletinService(db packetdb.Database, accts accounts.Repository, st staging.Staging, c cryptox.Provider, opts Options, metrics *Metrics, log logging.Logger) *BulletinService {
	if opts.ServerInfoTTL <= 0 {
		opts.ServerInfoTTL = 24 * time.Hour
	}
	return &BulletinService{
		db:       db,
		accounts: accts,
		staging:  st,
		crypto:   c,
		opts:     opts,
		metrics:  metrics,
		log:      log.With("module", "bulletin-service"),
	}
}

func (s *BulletinService) handler(command string) handlerFunc {
	switch command {
	case transfer.CmdPing:
		return s.ping
	case transfer.CmdGetServerInfo:
		return s.getServerInfo
	case transfer.CmdRequestUploadRights:
		return s.requestUploadRights
	case transfer.CmdPutBulletinChunk:
		return s.putBulletinChunk
	case transfer.CmdGetBulletinChunk:
		return s.getBulletinChunk
	case transfer.CmdListSealedBulletinIDs:
		return s.listSealedBulletinIDs
	case transfer.CmdDeleteDraftBulletins:
		return s.deleteDraftBulletins
	case transfer.CmdGetPublicDataPacket:
		return s.getPublicDataPacket
	case transfer.CmdListFieldOfficeAccounts:
		return s.listFieldOfficeAccounts
	}
	return nil
}

// Call verifies the request signature and runs the command. Every outcome
// is a Response; the error is always nil.
func (s *BulletinService) Call(ctx context.Context, account string, params []any, sig []byte) (transfer.Response, error) {
	command, _ := transfer.Args(params).String(0)
	h := s.handler(command)
	if h == nil {
		command = "unknown"
	}
	code, values := s.dispatch(ctx, account, command, h, params, sig)
	s.metrics.command(command, code)
	return transfer.Response{Code: code, Values: values}, nil
}

func (s *BulletinService) dispatch(ctx context.Context, account, command string, h handlerFunc, params []any, sig []byte) (string, []any) {
	if !transfer.VerifyParameters(s.crypto, account, params, sig) {
		return transfer.SigError, nil
	}
	if len(params) == 0 {
		return transfer.InvalidData, nil
	}
	if h == nil {
		return transfer.UnknownCommand, nil
	}
	code, values, err := h(ctx, account, transfer.Args(params[1:]))
	if err != nil {
		if errors.Is(err, transfer.ErrInvalidData) {
			return transfer.InvalidData, nil
		}
		s.log.Error(ctx, "command failed", "command", command, "error", err)
		return transfer.ServerFailure, nil
	}
	return code, values
}

func (s *BulletinService) ping(context.Context, string, transfer.Args) (string, []any, error) {
	return transfer.OK, nil, nil
}

func (s *BulletinService) getServerInfo(context.Context, string, transfer.Args) (string, []any, error) {
	token, err := serverinfo.Issue(s.crypto, serverinfo.Info{
		Version:      s.opts.Version,
		Compliance:   s.opts.Compliance,
		MaxChunkSize: transfer.CapChunkSize(s.opts.MaxChunkSize),
	}, s.opts.ServerInfoTTL)
	if err != nil {
		return "", nil, err
	}
	return transfer.OK, []any{token}, nil
}

func (s *BulletinService) requestUploadRights(ctx context.Context, account string, args transfer.Args) (string, []any, error) {
	word, err := args.String(0)
	if err != nil {
		return "", nil, err
	}
	if s.opts.MagicWord == "" || subtle.ConstantTimeCompare([]byte(word), []byte(s.opts.MagicWord)) != 1 {
		s.log.Warn(ctx, "upload rights refused", "account", shortID(account))
		return transfer.Rejected, nil, nil
	}
	if err := s.accounts.GrantUpload(ctx, account); err != nil {
		return "", nil, err
	}
	s.log.Info(ctx, "upload rights granted", "account", shortID(account))
	return transfer.OK, nil, nil
}

// putBulletinChunk takes (author, localId, totalSize, offset, chunkSize,
// base64 data).
func (s *BulletinService) putBulletinChunk(ctx context.Context, account string, args transfer.Args) (string, []any, error) {
	author, err := args.String(0)
	if err != nil {
		return "", nil, err
	}
	localID, err := args.String(1)
	if err != nil {
		return "", nil, err
	}
	total, err := args.Int(2)
	if err != nil {
		return "", nil, err
	}
	offset, err := args.Int(3)
	if err != nil {
		return "", nil, err
	}
	size, err := args.Int(4)
	if err != nil {
		return "", nil, err
	}
	text, err := args.String(5)
	if err != nil {
		return "", nil, err
	}

	if author != account {
		return transfer.NotAuthorized, nil, nil
	}
	allowed, err := s.accounts.CanUpload(ctx, account)
	if err != nil {
		return "", nil, err
	}
	if !allowed {
		return transfer.NotAuthorized, nil, nil
	}
	if !strings.HasPrefix(localID, packet.PrefixHeader) {
		return transfer.InvalidData, nil, nil
	}
	chunk, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return transfer.InvalidData, nil, nil
	}

	key := staging.Key{AccountID: author, LocalID: localID}

	unlock := s.uploads.Lock(author + "/" + localID)
	defer unlock()

	prev, err := s.staging.Load(ctx, key)
	if err != nil {
		return "", nil, err
	}
	p, err := transfer.AppendChunk(prev, total, offset, size, chunk, s.opts.MaxUploadSize)
	if err != nil {
		s.log.Warn(ctx, "upload chunk rejected", "bulletin", localID, "error", err)
		if err := s.staging.Delete(ctx, key); err != nil {
			return "", nil, err
		}
		return transfer.InvalidData, nil, nil
	}
	s.metrics.uploaded(len(chunk))

	if !p.Complete() {
		if err := s.staging.Save(ctx, key, p); err != nil {
			return "", nil, err
		}
		return transfer.ChunkOK, nil, nil
	}
	if err := s.staging.Delete(ctx, key); err != nil {
		return "", nil, err
	}
	code, err := s.storeBulletin(ctx, packet.UniversalID{AccountID: author, LocalID: localID}, p.Data)
	return code, nil, err
}

// storeBulletin validates an uploaded archive and writes it. A sealed
// bulletin is never replaced and supersedes any draft of the same id.
func (s *BulletinService) storeBulletin(ctx context.Context, uid packet.UniversalID, archive []byte) (string, error) {
	h, err := bulletin.PeekArchiveHeader(archive)
	if err != nil || h.UID != uid {
		return transfer.InvalidData, nil
	}

	sealedExists, err := s.db.HasRecord(ctx, packet.SealedKey(uid))
	if err != nil {
		return "", err
	}
	if sealedExists {
		return transfer.Duplicate, nil
	}

	res, err := bulletin.ImportBytes(ctx, s.db, s.crypto, archive)
	if err != nil {
		if errors.Is(err, common.ErrDamagedArchive) || errors.Is(err, common.ErrBulletinTooLarge) {
			s.log.Warn(ctx, "uploaded archive rejected", "bulletin", uid.String(), "error", err)
			return transfer.InvalidData, nil
		}
		return "", err
	}
	if len(res.Rejected) > 0 {
		s.log.Warn(ctx, "uploaded archive had invalid entries", "bulletin", uid.String(), "rejected", strings.Join(res.Rejected, ","))
	}
	if res.Key.IsSealed() {
		if err := bulletin.DeleteKey(ctx, s.db, packet.DraftKey(uid)); err != nil {
			return "", err
		}
	}
	s.metrics.Stored(string(res.Key.Status))
	s.log.Info(ctx, "bulletin stored", "bulletin", uid.String(), "status", string(res.Key.Status))
	return transfer.OK, nil
}

// getBulletinChunk takes (author, localId, offset, maxChunkSize). Authors
// read their sealed copy or else their draft; an HQ account reads sealed
// bulletins that name it.
func (s *BulletinService) getBulletinChunk(ctx context.Context, account string, args transfer.Args) (string, []any, error) {
	author, err := args.String(0)
	if err != nil {
		return "", nil, err
	}
	localID, err := args.String(1)
	if err != nil {
		return "", nil, err
	}
	offset, err := args.Int(2)
	if err != nil {
		return "", nil, err
	}
	maxChunk, err := args.Int(3)
	if err != nil {
		return "", nil, err
	}
	uid := packet.UniversalID{AccountID: author, LocalID: localID}
	if !uid.IsHeader() {
		return transfer.InvalidData, nil, nil
	}

	key, code, err := s.readableKey(ctx, account, uid)
	if err != nil || code != transfer.OK {
		return code, nil, err
	}
	archive, err := bulletin.ExportBytes(ctx, s.db, key)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return transfer.NotFound, nil, nil
		}
		return "", nil, err
	}

	code, chunk := transfer.SliceChunk(archive, offset, s.chunkLimit(maxChunk))
	if code == transfer.InvalidData {
		return code, nil, nil
	}
	s.metrics.served(len(chunk.Data))
	return code, transfer.ChunkValues(chunk), nil
}

func (s *BulletinService) chunkLimit(requested int64) int {
	limit := transfer.CapChunkSize(s.opts.MaxChunkSize)
	if requested > 0 && requested < int64(limit) {
		return int(requested)
	}
	return limit
}

func (s *BulletinService) readableKey(ctx context.Context, account string, uid packet.UniversalID) (packet.DatabaseKey, string, error) {
	candidates := []packet.DatabaseKey{packet.SealedKey(uid)}
	if account == uid.AccountID {
		candidates = append(candidates, packet.DraftKey(uid))
	}
	for _, key := range candidates {
		h, err := ReadHeader(ctx, s.db, key)
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return key, "", err
		}
		if account != uid.AccountID && h.HQPublicKey != account {
			return key, transfer.NotAuthorized, nil
		}
		return key, transfer.OK, nil
	}
	return packet.DatabaseKey{}, transfer.NotFound, nil
}

// listSealedBulletinIDs takes (author) and returns local ids: all of the
// author's sealed bulletins for the author, those naming the caller as HQ
// for anyone else.
func (s *BulletinService) listSealedBulletinIDs(ctx context.Context, account string, args transfer.Args) (string, []any, error) {
	author, err := args.String(0)
	if err != nil {
		return "", nil, err
	}
	keys, err := packetdb.HeaderKeys(ctx, s.db, author, packet.StatusSealed)
	if err != nil {
		return "", nil, err
	}
	ids := make([]any, 0, len(keys))
	for _, key := range keys {
		if account != author {
			h, err := ReadHeader(ctx, s.db, key)
			if err != nil {
				s.log.Warn(ctx, "unreadable header skipped", "bulletin", key.UID.String(), "error", err)
				continue
			}
			if h.HQPublicKey != account {
				continue
			}
		}
		ids = append(ids, key.UID.LocalID)
	}
	return transfer.OK, ids, nil
}

// deleteDraftBulletins takes (localIds) and removes the caller's drafts
// with those ids. Ids that do not name a header are skipped and make the
// result INCOMPLETE.
func (s *BulletinService) deleteDraftBulletins(ctx context.Context, account string, args transfer.Args) (string, []any, error) {
	ids, err := args.Strings(0)
	if err != nil {
		return "", nil, err
	}
	allowed, err := s.accounts.CanUpload(ctx, account)
	if err != nil {
		return "", nil, err
	}
	if !allowed {
		return transfer.NotAuthorized, nil, nil
	}

	code := transfer.OK
	deleted := 0
	for _, localID := range ids {
		uid := packet.UniversalID{AccountID: account, LocalID: localID}
		if !uid.IsHeader() {
			code = transfer.Incomplete
			continue
		}
		unlock := s.uploads.Lock(account + "/" + localID)
		err := bulletin.DeleteKey(ctx, s.db, packet.DraftKey(uid))
		unlock()
		if err != nil {
			return "", nil, err
		}
		deleted++
	}
	s.log.Info(ctx, "server drafts deleted", "account", shortID(account), "count", deleted)
	return code, nil, nil
}

// getPublicDataPacket takes (author, headerLocalId) and returns the signed
// public data packet of the bulletin the caller may read.
func (s *BulletinService) getPublicDataPacket(ctx context.Context, account string, args transfer.Args) (string, []any, error) {
	author, err := args.String(0)
	if err != nil {
		return "", nil, err
	}
	localID, err := args.String(1)
	if err != nil {
		return "", nil, err
	}
	uid := packet.UniversalID{AccountID: author, LocalID: localID}
	if !uid.IsHeader() {
		return transfer.InvalidData, nil, nil
	}

	key, code, err := s.readableKey(ctx, account, uid)
	if err != nil || code != transfer.OK {
		return code, nil, err
	}
	h, err := ReadHeader(ctx, s.db, key)
	if err != nil {
		return "", nil, err
	}
	if h.DataID == "" {
		return transfer.NotFound, nil, nil
	}
	doc, err := s.db.ReadRecord(ctx, key.WithLocalID(h.DataID))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return transfer.NotFound, nil, nil
		}
		return "", nil, err
	}
	return transfer.OK, []any{base64.StdEncoding.EncodeToString(doc)}, nil
}

// listFieldOfficeAccounts takes (hqAccount) and returns the accounts with
// at least one sealed bulletin naming it. Only the HQ account itself may
// ask.
func (s *BulletinService) listFieldOfficeAccounts(ctx context.Context, account string, args transfer.Args) (string, []any, error) {
	hq, err := args.String(0)
	if err != nil {
		return "", nil, err
	}
	if hq != account {
		return transfer.NotAuthorized, nil, nil
	}
	authors, err := packetdb.ListAccounts(ctx, s.db, packet.StatusSealed)
	if err != nil {
		return "", nil, err
	}
	out := make([]any, 0)
	for _, author := range authors {
		keys, err := packetdb.HeaderKeys(ctx, s.db, author, packet.StatusSealed)
		if err != nil {
			return "", nil, err
		}
		for _, key := range keys {
			h, err := ReadHeader(ctx, s.db, key)
			if err != nil {
				s.log.Warn(ctx, "unreadable header skipped", "bulletin", key.UID.String(), "error", err)
				continue
			}
			if h.HQPublicKey == hq {
				out = append(out, author)
				break
			}
		}
	}
	return transfer.OK, out, nil
}

// ReadHeader returns the unverified header stored under key.
func ReadHeader(ctx context.Context, db packetdb.Database, key packet.DatabaseKey) (*packet.Header, error) {
	doc, err := db.ReadRecord(ctx, key)
	if err != nil {
		return nil, err
	}
	p, err := packet.Peek(doc)
	if err != nil {
		return nil, err
	}
	if p.Header == nil {
		return nil, common.ErrDamagedPacket
	}
	return p.Header, nil
}

func shortID(account string) string {
	if len(account) > 12 {
		return account[:12]
	}
	return account
}
