package store

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/dmitrijs2005/bulletinkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/bulletinkeeper/internal/cryptox"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
)

type folderIndex struct {
	XMLName xml.Name        `xml:"FolderList"`
	Folders []indexedFolder `xml:"Folder"`
}

type indexedFolder struct {
	Name string      `xml:"name,attr"`
	IDs  []indexedID `xml:"Id"`
}

type indexedID struct {
	AccountID string `xml:"account,attr"`
	LocalID   string `xml:",chardata"`
}

// SaveFolders writes the folder index, encrypted for the local account,
// to the metadata repository.
func (s *Store) SaveFolders(ctx context.Context) error {
	if s.meta == nil {
		return nil
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	idx := folderIndex{Folders: make([]indexedFolder, 0, len(s.folders))}
	for _, f := range s.folders {
		fi := indexedFolder{Name: f.name}
		for _, uid := range f.ids {
			fi.IDs = append(fi.IDs, indexedID{AccountID: uid.AccountID, LocalID: uid.LocalID})
		}
		idx.Folders = append(idx.Folders, fi)
	}
	s.mu.RUnlock()

	plain, err := xml.Marshal(idx)
	if err != nil {
		return err
	}
	sealed, err := cryptox.SealForSelf(s.crypto, plain)
	if err != nil {
		return fmt.Errorf("seal folder index: %w", err)
	}
	return s.meta.Set(ctx, metadata.KeyFolders, sealed)
}

// LoadFolders replaces the in-memory folders with the persisted index.
// Startup folders missing from the index are recreated; with no index the
// store starts with just those. Ids whose header is no longer in the
// database under either status are dropped from every folder.
func (s *Store) LoadFolders(ctx context.Context) error {
	if s.meta == nil {
		return nil
	}
	sealed, err := s.meta.Get(ctx, metadata.KeyFolders)
	if err != nil {
		return err
	}

	var idx folderIndex
	if sealed != nil {
		plain, err := cryptox.OpenForSelf(s.crypto, sealed)
		if err != nil {
			return fmt.Errorf("open folder index: %w", err)
		}
		if err := xml.Unmarshal(plain, &idx); err != nil {
			return fmt.Errorf("parse folder index: %w", err)
		}
	}

	missing, err := s.missingIDs(ctx, idx)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		s.log.Warn(ctx, "folder index references deleted bulletins", "count", len(missing))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.folders = nil
	for _, fi := range idx.Folders {
		f := s.findOrCreate(fi.Name)
		for _, id := range fi.IDs {
			uid := packet.UniversalID{AccountID: id.AccountID, LocalID: id.LocalID}
			if _, gone := missing[uid]; !gone {
				f.add(uid)
			}
		}
	}
	for _, name := range startupFolders {
		s.findOrCreate(name)
	}
	return nil
}

func (s *Store) missingIDs(ctx context.Context, idx folderIndex) (map[packet.UniversalID]struct{}, error) {
	checked := make(map[packet.UniversalID]bool)
	missing := make(map[packet.UniversalID]struct{})
	for _, fi := range idx.Folders {
		for _, id := range fi.IDs {
			uid := packet.UniversalID{AccountID: id.AccountID, LocalID: id.LocalID}
			if checked[uid] {
				continue
			}
			checked[uid] = true
			ok, err := s.HasBulletin(ctx, uid)
			if err != nil {
				return nil, err
			}
			if !ok {
				missing[uid] = struct{}{}
			}
		}
	}
	return missing, nil
}
