package mirroring

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/dmitrijs2005/bulletinkeeper/internal/bulletin"
	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/cryptox"
	"github.com/dmitrijs2005/bulletinkeeper/internal/logging"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packetdb"
	"github.com/dmitrijs2005/bulletinkeeper/internal/transfer"
)

// Supplier serves sealed bulletins to peers on the allow-list. Drafts are
// never visible through it.
type Supplier struct {
	db       packetdb.Database
	verifier cryptox.Verifier
	allowed  *AllowList
	maxChunk int
	log      logging.Logger
}

func NewSupplier(db packetdb.Database, v cryptox.Verifier, allowed *AllowList, maxChunk int, log logging.Logger) *Supplier {
	return &Supplier{
		db:       db,
		verifier: v,
		allowed:  allowed,
		maxChunk: transfer.CapChunkSize(maxChunk),
		log:      log.With("module", "mirror-supplier"),
	}
}

// Call checks, in order: the signature, the allow-list (except for PING),
// the command name and then its arguments.
func (s *Supplier) Call(ctx context.Context, account string, params []any, sig []byte) (transfer.Response, error) {
	code, values := s.dispatch(ctx, account, params, sig)
	return transfer.Response{Code: code, Values: values}, nil
}

func (s *Supplier) dispatch(ctx context.Context, account string, params []any, sig []byte) (string, []any) {
	if !transfer.VerifyParameters(s.verifier, account, params, sig) {
		return transfer.SigError, nil
	}
	command, err := transfer.Args(params).String(0)
	if err != nil {
		return transfer.InvalidData, nil
	}
	if command == transfer.CmdPing {
		return transfer.OK, nil
	}
	if !s.allowed.Contains(account) {
		s.log.Warn(ctx, "mirroring refused", "caller", account, "command", command)
		return transfer.NotAuthorized, nil
	}

	args := transfer.Args(params[1:])
	var (
		code   string
		values []any
	)
	switch command {
	case transfer.CmdListAccountsForMirroring:
		code, values, err = s.listAccounts(ctx)
	case transfer.CmdListBulletinsForMirroring:
		code, values, err = s.listBulletins(ctx, args)
	case transfer.CmdGetChunkForMirroring:
		code, values, err = s.getChunk(ctx, args)
	default:
		return transfer.UnknownCommand, nil
	}
	if err != nil {
		if errors.Is(err, transfer.ErrInvalidData) {
			return transfer.InvalidData, nil
		}
		s.log.Error(ctx, "mirroring command failed", "command", command, "error", err)
		return transfer.ServerFailure, nil
	}
	return code, values
}

func (s *Supplier) listAccounts(ctx context.Context) (string, []any, error) {
	accounts, err := packetdb.ListAccounts(ctx, s.db, packet.StatusSealed)
	if err != nil {
		return "", nil, err
	}
	values := make([]any, len(accounts))
	for i, a := range accounts {
		values[i] = a
	}
	return transfer.OK, values, nil
}

// listBulletins answers one [localId, header signature] pair per sealed
// bulletin of the account.
func (s *Supplier) listBulletins(ctx context.Context, args transfer.Args) (string, []any, error) {
	account, err := args.String(0)
	if err != nil {
		return "", nil, err
	}
	keys, err := packetdb.HeaderKeys(ctx, s.db, account, packet.StatusSealed)
	if err != nil {
		return "", nil, err
	}
	values := make([]any, 0, len(keys))
	for _, key := range keys {
		doc, err := s.db.ReadRecord(ctx, key)
		if err != nil {
			return "", nil, err
		}
		sig, err := packet.ExtractSignature(doc)
		if err != nil {
			s.log.Warn(ctx, "unsigned header skipped", "bulletin", key.UID.String(), "error", err)
			continue
		}
		values = append(values, []string{key.UID.LocalID, base64.StdEncoding.EncodeToString(sig)})
	}
	return transfer.OK, values, nil
}

// getChunk takes (account, localId, offset, maxChunkSize).
func (s *Supplier) getChunk(ctx context.Context, args transfer.Args) (string, []any, error) {
	account, err := args.String(0)
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

	uid := packet.UniversalID{AccountID: account, LocalID: localID}
	if !uid.IsHeader() {
		return transfer.InvalidData, nil, nil
	}

	limit := s.maxChunk
	if maxChunk > 0 && maxChunk < int64(limit) {
		limit = int(maxChunk)
	}
	archive, err := bulletin.ExportBytes(ctx, s.db, packet.SealedKey(uid))
	if errors.Is(err, common.ErrNotFound) {
		return transfer.NotFound, nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	code, chunk := transfer.SliceChunk(archive, offset, limit)
	if code == transfer.InvalidData {
		return code, nil, nil
	}
	return code, transfer.ChunkValues(chunk), nil
}
