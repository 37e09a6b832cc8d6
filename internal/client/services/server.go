package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/bulletinkeeper/internal/client/client"
	"github.com/dmitrijs2005/bulletinkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/cryptox"
	"github.com/dmitrijs2005/bulletinkeeper/internal/logging"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
	"github.com/dmitrijs2005/bulletinkeeper/internal/serverinfo"
	"github.com/dmitrijs2005/bulletinkeeper/internal/transfer"
)

// ServerService defines the request/response commands of the client.
//
// Result codes of failed commands are returned as *transfer.ServerError;
// an unreachable server yields client.ErrUnavailable.
type ServerService interface {
	Ping(ctx context.Context) error
	GetServerInfo(ctx context.Context) (*serverinfo.Info, error)
	CachedServerInfo(ctx context.Context) (*serverinfo.Info, error)
	RequestUploadRights(ctx context.Context, magicWord string) error
	ListSealedBulletins(ctx context.Context, author string) ([]packet.UniversalID, error)
	ListMySealedBulletins(ctx context.Context) ([]packet.UniversalID, error)
	DeleteServerDrafts(ctx context.Context, localIDs []string) error
	ListFieldOfficeAccounts(ctx context.Context) ([]string, error)
	RetrievePublicData(ctx context.Context, uid packet.UniversalID) ([]packet.Field, error)
	Close() error
}

type serverService struct {
	client          client.Client
	crypto          cryptox.Provider
	meta            metadata.Repository
	serverPublicKey string
	log             logging.Logger
}

// NewServerService binds the commands to a transport and the local
// account. serverPublicKey is the key server information must be signed
// with; meta caches the last verified information and may be nil.
func NewServerService(c client.Client, crypto cryptox.Provider, meta metadata.Repository, serverPublicKey string, log logging.Logger) ServerService {
	return &serverService{
		client:          c,
		crypto:          crypto,
		meta:            meta,
		serverPublicKey: serverPublicKey,
		log:             log.With("module", "server-service"),
	}
}

func (s *serverService) invoke(ctx context.Context, command string, args ...any) (transfer.Response, error) {
	resp, err := transfer.Invoke(ctx, s.client, s.crypto, command, args...)
	if err != nil {
		return transfer.Response{}, err
	}
	if resp.Code != transfer.OK {
		return resp, &transfer.ServerError{Code: resp.Code}
	}
	return resp, nil
}

func (s *serverService) Ping(ctx context.Context) error {
	_, err := s.invoke(ctx, transfer.CmdPing)
	return err
}

// GetServerInfo fetches and verifies the signed server information and
// caches the token.
func (s *serverService) GetServerInfo(ctx context.Context) (*serverinfo.Info, error) {
	resp, err := s.invoke(ctx, transfer.CmdGetServerInfo)
	if err != nil {
		return nil, err
	}
	token, err := transfer.Args(resp.Values).String(0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnexpectedResponse, err)
	}
	info, err := serverinfo.Parse(token, s.serverPublicKey)
	if err != nil {
		return nil, err
	}
	if s.meta != nil {
		if err := s.meta.Set(ctx, metadata.KeyServerInfo, []byte(token)); err != nil {
			s.log.Warn(ctx, "failed to cache server info", "error", err)
		}
	}
	return info, nil
}

// CachedServerInfo returns the last verified server information.
func (s *serverService) CachedServerInfo(ctx context.Context) (*serverinfo.Info, error) {
	if s.meta == nil {
		return nil, common.ErrNotFound
	}
	token, err := s.meta.Get(ctx, metadata.KeyServerInfo)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, common.ErrNotFound
	}
	return serverinfo.Parse(string(token), s.serverPublicKey)
}

func (s *serverService) RequestUploadRights(ctx context.Context, magicWord string) error {
	_, err := s.invoke(ctx, transfer.CmdRequestUploadRights, magicWord)
	return err
}

// ListSealedBulletins lists the sealed bulletins of author the server lets
// this account see: all of its own, or those naming it as HQ.
func (s *serverService) ListSealedBulletins(ctx context.Context, author string) ([]packet.UniversalID, error) {
	resp, err := s.invoke(ctx, transfer.CmdListSealedBulletinIDs, author)
	if err != nil {
		return nil, err
	}
	ids := make([]packet.UniversalID, 0, len(resp.Values))
	args := transfer.Args(resp.Values)
	for i := range args {
		localID, err := args.String(i)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrUnexpectedResponse, err)
		}
		ids = append(ids, packet.UniversalID{AccountID: author, LocalID: localID})
	}
	return ids, nil
}

func (s *serverService) ListMySealedBulletins(ctx context.Context) ([]packet.UniversalID, error) {
	return s.ListSealedBulletins(ctx, s.crypto.PublicKeyString())
}

// DeleteServerDrafts removes this account's drafts with the given ids from
// the server. Sealed copies are never affected.
func (s *serverService) DeleteServerDrafts(ctx context.Context, localIDs []string) error {
	if len(localIDs) == 0 {
		return nil
	}
	_, err := s.invoke(ctx, transfer.CmdDeleteDraftBulletins, localIDs)
	return err
}

// ListFieldOfficeAccounts lists the accounts that sent this account, as
// HQ, at least one sealed bulletin.
func (s *serverService) ListFieldOfficeAccounts(ctx context.Context) ([]string, error) {
	resp, err := s.invoke(ctx, transfer.CmdListFieldOfficeAccounts, s.crypto.PublicKeyString())
	if err != nil {
		return nil, err
	}
	args := transfer.Args(resp.Values)
	accounts := make([]string, 0, len(args))
	for i := range args {
		a, err := args.String(i)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrUnexpectedResponse, err)
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

// RetrievePublicData fetches the public fields of one bulletin without
// downloading its archive. The packet must be signed by the bulletin's
// author and belong to it.
func (s *serverService) RetrievePublicData(ctx context.Context, uid packet.UniversalID) ([]packet.Field, error) {
	resp, err := s.invoke(ctx, transfer.CmdGetPublicDataPacket, uid.AccountID, uid.LocalID)
	if err != nil {
		return nil, err
	}
	text, err := transfer.Args(resp.Values).String(0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnexpectedResponse, err)
	}
	doc, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnexpectedResponse, err)
	}
	p, err := packet.LoadBytes(doc, nil, s.crypto)
	if err != nil {
		return nil, err
	}
	if p.UID.AccountID != uid.AccountID || p.Kind != packet.KindPublicData {
		return nil, fmt.Errorf("%w: public data of %s expected, found %s %s", common.ErrDamagedPacket, uid, p.Kind, p.UID)
	}
	if err := p.OpenFields(s.crypto); err != nil {
		return nil, err
	}
	return p.Fields.Fields, nil
}

func (s *serverService) Close() error {
	return s.client.Close()
}

// resultCode turns a transfer outcome into a result code. An unreachable
// server is NO_SERVER rather than an error.
func resultCode(code string, err error) (string, error) {
	if err == nil {
		return code, nil
	}
	if errors.Is(err, client.ErrUnavailable) {
		return transfer.NoServer, nil
	}
	var se *transfer.ServerError
	if errors.As(err, &se) {
		return se.Code, nil
	}
	return "", err
}
