package staging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dmitrijs2005/bulletinkeeper/internal/logging"
	"github.com/dmitrijs2005/bulletinkeeper/internal/transfer"
)

// Badger keeps uploads in a badger database with per-entry TTL, so
// staged chunks survive a restart. An empty dir opens an in-memory
// database.
type Badger struct {
	db       *badger.DB
	ttl      time.Duration
	inMemory bool
}

func OpenBadger(dir string, ttl time.Duration, log logging.Logger) (*Badger, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(badgerLogger{log: log.With("module", "staging")}).
		WithLoggingLevel(badger.WARNING)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open staging db: %w", err)
	}
	return &Badger{db: db, ttl: ttl, inMemory: dir == ""}, nil
}

func (b *Badger) Load(_ context.Context, key Key) (*transfer.Partial, error) {
	var raw []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key.bytes())
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load staged upload: %w", err)
	}
	return decode(raw)
}

func (b *Badger) Save(_ context.Context, key Key, p *transfer.Partial) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key.bytes(), encode(p)).WithTTL(b.ttl))
	})
	if err != nil {
		return fmt.Errorf("failed to stage upload: %w", err)
	}
	return nil
}

func (b *Badger) Delete(_ context.Context, key Key) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key.bytes())
	})
	if err != nil {
		return fmt.Errorf("failed to drop staged upload: %w", err)
	}
	return nil
}

// CollectGarbage reclaims value log space left by expired and deleted
// uploads.
func (b *Badger) CollectGarbage() error {
	if b.inMemory {
		return nil
	}
	for {
		err := b.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// badgerLogger adapts logging.Logger to badger's printf-style logger.
type badgerLogger struct {
	log logging.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(context.Background(), fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(context.Background(), fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Info(context.Background(), fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, args...))
}
