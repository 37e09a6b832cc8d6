package store

import (
	"slices"
	"strings"

	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
)

// Reserved folder names. Names starting with '%' cannot be created,
// renamed or deleted by users.
const (
	FolderOutbox               = "%OutBox"
	FolderDraftOutbox          = "%DraftOutBox"
	FolderSent                 = "%Sent"
	FolderDraft                = "%Draft"
	FolderDiscarded            = "%Discarded"
	FolderRetrievedMyBulletin  = "%RetrievedMyBulletin"
	FolderRetrievedFieldOffice = "%RetrievedFieldOfficeBulletin"
	FolderSearchResults        = "%SearchResults"
	FolderRecoveredBulletins   = "%RecoveredBulletins"

	newFolderBaseName = "New Folder"
	reservedPrefix    = "%"
)

// startupFolders always exist. The others are created on first use.
var startupFolders = []string{FolderOutbox, FolderSent, FolderDraft, FolderDiscarded, FolderDraftOutbox}

// IsReservedName reports whether name belongs to the store.
func IsReservedName(name string) bool {
	return strings.HasPrefix(name, reservedPrefix)
}

// isVisible reports whether a folder is shown to the user.
func isVisible(name string) bool {
	return name != FolderDraftOutbox
}

// Folder is a snapshot of one folder.
type Folder struct {
	Name string
	IDs  []packet.UniversalID
}

func (f *Folder) Count() int { return len(f.IDs) }

func (f *Folder) Contains(uid packet.UniversalID) bool {
	return slices.Contains(f.IDs, uid)
}

// folder is an ordered id set guarded by the store lock.
type folder struct {
	name string
	ids  []packet.UniversalID
}

func (f *folder) snapshot() *Folder {
	return &Folder{Name: f.name, IDs: slices.Clone(f.ids)}
}

func (f *folder) contains(uid packet.UniversalID) bool {
	return slices.Contains(f.ids, uid)
}

func (f *folder) add(uid packet.UniversalID) bool {
	if f.contains(uid) {
		return false
	}
	f.ids = append(f.ids, uid)
	return true
}

func (f *folder) remove(uid packet.UniversalID) bool {
	i := slices.Index(f.ids, uid)
	if i < 0 {
		return false
	}
	f.ids = slices.Delete(f.ids, i, i+1)
	return true
}
