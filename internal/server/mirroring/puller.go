package mirroring

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/bulletinkeeper/internal/bulletin"
	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/cryptox"
	"github.com/dmitrijs2005/bulletinkeeper/internal/logging"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packetdb"
	"github.com/dmitrijs2005/bulletinkeeper/internal/server/services"
	"github.com/dmitrijs2005/bulletinkeeper/internal/transfer"
	"golang.org/x/sync/errgroup"
)

// Source is a peer server we pull from.
type Source struct {
	Name   string
	Caller transfer.Caller
}

// PullStats summarizes one pass over a source.
type PullStats struct {
	Accounts int
	Listed   int
	Pulled   int
	Failed   int
}

// Puller copies sealed bulletins from its sources into the local database.
// Requests are signed with the local server key, which each source must
// have on its allow-list.
type Puller struct {
	db        packetdb.Database
	crypto    cryptox.Provider
	sources   []Source
	interval  time.Duration
	chunkSize int
	metrics   *services.Metrics
	log       logging.Logger
}

func NewPuller(db packetdb.Database, c cryptox.Provider, sources []Source, interval time.Duration, chunkSize int, metrics *services.Metrics, log logging.Logger) *Puller {
	return &Puller{
		db:        db,
		crypto:    c,
		sources:   sources,
		interval:  interval,
		chunkSize: transfer.CapChunkSize(chunkSize),
		metrics:   metrics,
		log:       log.With("module", "mirror-puller"),
	}
}

// Run pulls from every source once per interval until ctx is done.
func (p *Puller) Run(ctx context.Context) error {
	if len(p.sources) == 0 || p.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.PullAll(ctx); err != nil && ctx.Err() == nil {
			p.log.Error(ctx, "mirror pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// PullAll runs one pass over every source concurrently. A failing source
// does not stop the others; their errors are joined.
func (p *Puller) PullAll(ctx context.Context) error {
	errs := make([]error, len(p.sources))
	var g errgroup.Group
	for i, src := range p.sources {
		g.Go(func() error {
			stats, err := p.Pull(ctx, src)
			if err != nil {
				errs[i] = fmt.Errorf("source %s: %w", src.Name, err)
				return nil
			}
			p.log.Info(ctx, "mirror pass done", "source", src.Name,
				"accounts", stats.Accounts, "listed", stats.Listed, "pulled", stats.Pulled, "failed", stats.Failed)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Pull copies from src every sealed bulletin we lack or hold with a
// different header signature.
func (p *Puller) Pull(ctx context.Context, src Source) (PullStats, error) {
	var stats PullStats
	values, err := p.invoke(ctx, src, transfer.CmdListAccountsForMirroring)
	if err != nil {
		return stats, err
	}
	accounts := transfer.Args(values)
	for i := range accounts {
		account, err := accounts.String(i)
		if err != nil {
			return stats, fmt.Errorf("%w: %v", common.ErrUnexpectedResponse, err)
		}
		stats.Accounts++
		if err := p.pullAccount(ctx, src, account, &stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (p *Puller) pullAccount(ctx context.Context, src Source, account string, stats *PullStats) error {
	values, err := p.invoke(ctx, src, transfer.CmdListBulletinsForMirroring, account)
	if err != nil {
		return err
	}
	pairs := transfer.Args(values)
	for i := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		pair, err := pairs.Strings(i)
		if err != nil || len(pair) != 2 {
			return fmt.Errorf("%w: bulletin entry %d", common.ErrUnexpectedResponse, i)
		}
		stats.Listed++
		uid := packet.UniversalID{AccountID: account, LocalID: pair[0]}
		wanted, err := p.wants(ctx, uid, pair[1])
		if err != nil {
			return err
		}
		if !wanted {
			continue
		}
		if err := p.pullBulletin(ctx, src, uid); err != nil {
			var se *transfer.ServerError
			if errors.As(err, &se) || errors.Is(err, common.ErrDamagedArchive) {
				p.log.Warn(ctx, "mirrored bulletin skipped", "source", src.Name, "bulletin", uid.String(), "error", err)
				stats.Failed++
				continue
			}
			return err
		}
		stats.Pulled++
	}
	return nil
}

// wants reports whether the local sealed copy of uid is missing or
// carries a different signature than sigText.
func (p *Puller) wants(ctx context.Context, uid packet.UniversalID, sigText string) (bool, error) {
	doc, err := p.db.ReadRecord(ctx, packet.SealedKey(uid))
	if errors.Is(err, common.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	sig, err := base64.StdEncoding.DecodeString(sigText)
	if err != nil {
		return false, fmt.Errorf("%w: signature of %s", common.ErrUnexpectedResponse, uid)
	}
	have, err := packet.ExtractSignature(doc)
	if err != nil {
		return true, nil
	}
	return !bytes.Equal(have, sig), nil
}

func (p *Puller) pullBulletin(ctx context.Context, src Source, uid packet.UniversalID) error {
	fetch := func(ctx context.Context, offset int64, maxChunk int) (transfer.Response, error) {
		return transfer.Invoke(ctx, src.Caller, p.crypto, transfer.CmdGetChunkForMirroring,
			uid.AccountID, uid.LocalID, offset, int64(maxChunk))
	}
	var buf bytes.Buffer
	if _, err := transfer.Download(ctx, fetch, p.chunkSize, &buf); err != nil {
		return err
	}

	h, err := bulletin.PeekArchiveHeader(buf.Bytes())
	if err != nil {
		return err
	}
	if h.UID != uid || h.Header.Status != packet.StatusSealed {
		return fmt.Errorf("%w: source sent %s (%s)", common.ErrDamagedArchive, h.UID, h.Header.Status)
	}
	res, err := bulletin.ImportBytes(ctx, p.db, p.crypto, buf.Bytes())
	if err != nil {
		return err
	}
	if err := bulletin.DeleteKey(ctx, p.db, packet.DraftKey(uid)); err != nil {
		return err
	}
	p.metrics.Stored(string(res.Key.Status))
	return nil
}

func (p *Puller) invoke(ctx context.Context, src Source, command string, args ...any) ([]any, error) {
	resp, err := transfer.Invoke(ctx, src.Caller, p.crypto, command, args...)
	if err != nil {
		return nil, err
	}
	if resp.Code != transfer.OK {
		return nil, &transfer.ServerError{Code: resp.Code, Reason: command}
	}
	return resp.Values, nil
}
