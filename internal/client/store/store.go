// Package store is the client-side bulletin store: packet persistence for
// one account plus the folder index the user sees.
//
// All methods are safe for concurrent use. Folder operations are
// linearizable with each other; packet reads and writes are delegated to
// the packet database, which serializes writes per key.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/dmitrijs2005/bulletinkeeper/internal/bulletin"
	"github.com/dmitrijs2005/bulletinkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/cryptox"
	"github.com/dmitrijs2005/bulletinkeeper/internal/logging"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packetdb"
	"github.com/dmitrijs2005/bulletinkeeper/internal/syncx"
	lru "github.com/hashicorp/golang-lru"
)

const cachedBulletins = 256

type Store struct {
	db     packetdb.Database
	crypto cryptox.Provider
	meta   metadata.Repository
	log    logging.Logger

	// sealed, fully valid bulletins only; drafts are always read from the
	// database
	cache *lru.ARCCache

	// bulletins serializes writes, deletes and cache fills per bulletin so
	// the cache never outlives the packets and imports never interleave.
	bulletins syncx.KeyedMutex

	mu            sync.RWMutex
	folders       []*folder
	maxNewFolders int
	hqKey         string

	saveMu sync.Mutex
}

// New creates a store with the startup folders. meta may be nil, in which
// case the folder index lives only in memory.
func New(db packetdb.Database, c cryptox.Provider, meta metadata.Repository, log logging.Logger) (*Store, error) {
	cache, err := lru.NewARC(cachedBulletins)
	if err != nil {
		return nil, err
	}
	s := &Store{
		db:            db,
		crypto:        c,
		meta:          meta,
		log:           log.With("module", "store"),
		cache:         cache,
		maxNewFolders: common.MaxNewFolders,
	}
	s.resetFolders()
	return s, nil
}

func (s *Store) Database() packetdb.Database { return s.db }
func (s *Store) Crypto() cryptox.Provider     { return s.crypto }
func (s *Store) AccountID() string            { return s.crypto.PublicKeyString() }

func (s *Store) SetMaxNewFolders(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxNewFolders = n
}

// SetHQPublicKey sets the key new bulletins are shared with.
func (s *Store) SetHQPublicKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hqKey = key
}

func (s *Store) HQPublicKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hqKey
}

// CreateBulletin returns a new unsaved draft owned by the local account.
func (s *Store) CreateBulletin() *bulletin.Bulletin {
	b := bulletin.New(s.AccountID())
	b.SetHQPublicKey(s.HQPublicKey())
	return b
}

func (s *Store) lockBulletin(uid packet.UniversalID) func() {
	return s.bulletins.Lock(uid.AccountID + "/" + uid.LocalID)
}

func (s *Store) SaveBulletin(ctx context.Context, b *bulletin.Bulletin) error {
	uid := b.UniversalID()
	defer s.lockBulletin(uid)()

	s.cache.Remove(uid)
	return bulletin.Save(ctx, s.db, s.crypto, b)
}

// DestroyBulletin removes b from every folder and deletes its packets.
func (s *Store) DestroyBulletin(ctx context.Context, b *bulletin.Bulletin) error {
	uid := b.UniversalID()
	s.mu.Lock()
	for _, f := range s.folders {
		f.remove(uid)
	}
	s.mu.Unlock()

	defer s.lockBulletin(uid)()
	s.cache.Remove(uid)
	return bulletin.Delete(ctx, s.db, b)
}

// FindBulletin loads the sealed copy of uid if there is one, otherwise the
// draft. A bulletin that does not exist yields common.ErrNotFound.
func (s *Store) FindBulletin(ctx context.Context, uid packet.UniversalID) (*bulletin.Bulletin, error) {
	defer s.lockBulletin(uid)()

	if v, ok := s.cache.Get(uid); ok {
		return v.(*bulletin.Bulletin), nil
	}
	b, err := bulletin.Load(ctx, s.db, packet.SealedKey(uid), s.crypto)
	if err == nil {
		if b.IsValid() {
			s.cache.Add(uid, b)
		}
		return b, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	return bulletin.Load(ctx, s.db, packet.DraftKey(uid), s.crypto)
}

// HasBulletin reports whether a header for uid exists under either status.
func (s *Store) HasBulletin(ctx context.Context, uid packet.UniversalID) (bool, error) {
	for _, key := range []packet.DatabaseKey{packet.SealedKey(uid), packet.DraftKey(uid)} {
		ok, err := s.db.HasRecord(ctx, key)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// HeaderKey returns the key the bulletin is stored under, preferring the
// sealed copy.
func (s *Store) HeaderKey(ctx context.Context, uid packet.UniversalID) (packet.DatabaseKey, error) {
	for _, key := range []packet.DatabaseKey{packet.SealedKey(uid), packet.DraftKey(uid)} {
		ok, err := s.db.HasRecord(ctx, key)
		if err != nil {
			return packet.DatabaseKey{}, err
		}
		if ok {
			return key, nil
		}
	}
	return packet.DatabaseKey{}, common.ErrNotFound
}

// BulletinIDs lists every bulletin in the database once.
func (s *Store) BulletinIDs(ctx context.Context) ([]packet.UniversalID, error) {
	seen := make(map[packet.UniversalID]struct{})
	var ids []packet.UniversalID
	err := s.db.VisitAllRecords(ctx, func(key packet.DatabaseKey) error {
		if !key.UID.IsHeader() {
			return nil
		}
		if _, ok := seen[key.UID]; !ok {
			seen[key.UID] = struct{}{}
			ids = append(ids, key.UID)
		}
		return nil
	})
	return ids, err
}

func (s *Store) BulletinCount(ctx context.Context) (int, error) {
	ids, err := s.BulletinIDs(ctx)
	return len(ids), err
}

// ExportArchive writes the zip archive of uid to w.
func (s *Store) ExportArchive(ctx context.Context, uid packet.UniversalID, w io.Writer) error {
	defer s.lockBulletin(uid)()

	key, err := s.HeaderKey(ctx, uid)
	if err != nil {
		return err
	}
	return bulletin.Export(ctx, s.db, key, w)
}

// ImportArchive validates and stores an archive. A sealed import replaces
// any local draft of the same bulletin. Imports of the same bulletin run one
// at a time, so the last one wins with its whole packet set.
func (s *Store) ImportArchive(ctx context.Context, data []byte) (*bulletin.ImportResult, error) {
	hp, err := bulletin.PeekArchiveHeader(data)
	if err != nil {
		return nil, err
	}
	defer s.lockBulletin(hp.UID)()

	s.cache.Remove(hp.UID)
	res, err := bulletin.ImportBytes(ctx, s.db, s.crypto, data)
	if err != nil {
		return nil, err
	}
	if res.Key.IsSealed() {
		if err := bulletin.DeleteKey(ctx, s.db, packet.DraftKey(res.Key.UID)); err != nil {
			return nil, err
		}
	}
	if len(res.Rejected) > 0 {
		s.log.Warn(ctx, "archive entries rejected", "bulletin", res.Key.UID.String(), "rejected", len(res.Rejected))
	}
	return res, nil
}

func (s *Store) resetFolders() {
	s.folders = s.folders[:0]
	for _, name := range startupFolders {
		s.folders = append(s.folders, &folder{name: name})
	}
}

func (s *Store) find(name string) *folder {
	for _, f := range s.folders {
		if f.name == name {
			return f
		}
	}
	return nil
}

func (s *Store) findOrCreate(name string) *folder {
	if f := s.find(name); f != nil {
		return f
	}
	f := &folder{name: name}
	s.folders = append(s.folders, f)
	return f
}

// FindFolder returns a snapshot of the folder, or nil.
func (s *Store) FindFolder(name string) *Folder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f := s.find(name); f != nil {
		return f.snapshot()
	}
	return nil
}

// FolderNames lists folders in creation order.
func (s *Store) FolderNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.folders))
	for _, f := range s.folders {
		names = append(names, f.name)
	}
	return names
}

// CreateFolder creates an empty user folder.
func (s *Store) CreateFolder(name string) (*Folder, error) {
	if name == "" || IsReservedName(name) {
		return nil, fmt.Errorf("%w: %q", common.ErrReservedFolder, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.find(name) != nil {
		return nil, fmt.Errorf("%w: %q", common.ErrFolderExists, name)
	}
	f := &folder{name: name}
	s.folders = append(s.folders, f)
	return f.snapshot(), nil
}

// CreateUniqueFolder creates "New Folder", then "New Folder1" and so on.
// It returns nil once the configured number of names is used up.
func (s *Store) CreateUniqueFolder() *Folder {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < s.maxNewFolders; i++ {
		name := newFolderBaseName
		if i > 0 {
			name += strconv.Itoa(i)
		}
		if s.find(name) == nil {
			f := &folder{name: name}
			s.folders = append(s.folders, f)
			return f.snapshot()
		}
	}
	return nil
}

// CreateRetrievedFolder returns the reserved folder that retrieved
// bulletins go to, creating it if needed.
func (s *Store) CreateRetrievedFolder(fieldOffice bool) *Folder {
	name := FolderRetrievedMyBulletin
	if fieldOffice {
		name = FolderRetrievedFieldOffice
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findOrCreate(name).snapshot()
}

// DeleteFolder removes a user folder. Its bulletins move to the discarded
// folder so none become orphans.
func (s *Store) DeleteFolder(name string) error {
	if IsReservedName(name) {
		return fmt.Errorf("%w: %q", common.ErrReservedFolder, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.folders, func(f *folder) bool { return f.name == name })
	if i < 0 {
		return fmt.Errorf("%w: %q", common.ErrFolderNotFound, name)
	}
	discarded := s.findOrCreate(FolderDiscarded)
	for _, uid := range s.folders[i].ids {
		discarded.add(uid)
	}
	s.folders = slices.Delete(s.folders, i, i+1)
	return nil
}

func (s *Store) RenameFolder(oldName, newName string) error {
	if IsReservedName(oldName) || newName == "" || IsReservedName(newName) {
		return fmt.Errorf("%w: %q", common.ErrReservedFolder, oldName)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.find(oldName)
	if f == nil {
		return fmt.Errorf("%w: %q", common.ErrFolderNotFound, oldName)
	}
	if s.find(newName) != nil {
		return fmt.Errorf("%w: %q", common.ErrFolderExists, newName)
	}
	f.name = newName
	return nil
}

func (s *Store) AddBulletinToFolder(name string, uid packet.UniversalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.find(name)
	if f == nil {
		return fmt.Errorf("%w: %q", common.ErrFolderNotFound, name)
	}
	f.add(uid)
	return nil
}

func (s *Store) RemoveBulletinFromFolder(name string, uid packet.UniversalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.find(name)
	if f == nil {
		return fmt.Errorf("%w: %q", common.ErrFolderNotFound, name)
	}
	f.remove(uid)
	return nil
}

// MoveBulletin adds uid to "to" and removes it from "from" in one step.
func (s *Store) MoveBulletin(uid packet.UniversalID, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.move(uid, from, to)
}

func (s *Store) move(uid packet.UniversalID, from, to string) error {
	src, dst := s.find(from), s.find(to)
	if src == nil {
		return fmt.Errorf("%w: %q", common.ErrFolderNotFound, from)
	}
	if dst == nil {
		return fmt.Errorf("%w: %q", common.ErrFolderNotFound, to)
	}
	if src == dst {
		return nil
	}
	dst.add(uid)
	src.remove(uid)
	return nil
}

// DiscardBulletin moves uid from a folder to the discarded folder.
// Discarding from the discarded folder itself removes the bulletin from it;
// a bulletin left in no folder is destroyed.
func (s *Store) DiscardBulletin(ctx context.Context, from string, uid packet.UniversalID) error {
	s.mu.Lock()
	if from != FolderDiscarded {
		s.findOrCreate(FolderDiscarded)
		err := s.move(uid, from, FolderDiscarded)
		s.mu.Unlock()
		return err
	}
	if f := s.find(FolderDiscarded); f != nil {
		f.remove(uid)
	}
	orphan := s.isOrphan(uid)
	s.mu.Unlock()

	if !orphan {
		return nil
	}
	b, err := s.FindBulletin(ctx, uid)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.DestroyBulletin(ctx, b)
}

// FoldersContaining lists the visible folders that hold uid.
func (s *Store) FoldersContaining(uid packet.UniversalID) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for _, f := range s.folders {
		if isVisible(f.name) && f.contains(uid) {
			names = append(names, f.name)
		}
	}
	return names
}

// IsOrphan reports whether uid is in no folder at all.
func (s *Store) IsOrphan(uid packet.UniversalID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isOrphan(uid)
}

func (s *Store) isOrphan(uid packet.UniversalID) bool {
	for _, f := range s.folders {
		if f.contains(uid) {
			return false
		}
	}
	return true
}

// RepairOrphans puts every stored bulletin that is in no folder into the
// recovered folder and returns how many it moved.
func (s *Store) RepairOrphans(ctx context.Context) (int, error) {
	ids, err := s.BulletinIDs(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, uid := range ids {
		if !s.isOrphan(uid) {
			continue
		}
		s.findOrCreate(FolderRecoveredBulletins).add(uid)
		n++
	}
	if n > 0 {
		s.log.Info(ctx, "recovered orphan bulletins", "count", n)
	}
	return n, nil
}

// Search clears the search results folder and fills it with bulletins
// whose event date lies in [start, end] and whose fields contain text.
// Bulletins that cannot be loaded are skipped.
func (s *Store) Search(ctx context.Context, text string, start, end time.Time) (int, error) {
	ids, err := s.BulletinIDs(ctx)
	if err != nil {
		return 0, err
	}
	startDay, endDay := dayOf(start), dayOf(end)

	var found []packet.UniversalID
	for _, uid := range ids {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		b, err := s.FindBulletin(ctx, uid)
		if err != nil {
			s.log.Debug(ctx, "search skipped bulletin", "bulletin", uid.String(), "error", err)
			continue
		}
		ev, ok := b.EventDate()
		if !ok {
			continue
		}
		day := dayOf(ev)
		if day.Before(startDay) || day.After(endDay) {
			continue
		}
		if b.Matches(text) {
			found = append(found, uid)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.findOrCreate(FolderSearchResults).ids = found
	return len(found), nil
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
