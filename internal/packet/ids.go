package packet

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Local id prefixes per packet kind.
const (
	PrefixHeader     = "B-"
	PrefixFieldData  = "F-"
	PrefixAttachment = "A-"
)

// Status is the location class of a stored packet.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusSealed Status = "sealed"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusDraft, StatusSealed:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// UniversalID is the global address of a packet.
type UniversalID struct {
	AccountID string
	LocalID   string
}

// NewUniversalID creates an id with a fresh local part under prefix.
func NewUniversalID(accountID, prefix string) UniversalID {
	return UniversalID{AccountID: accountID, LocalID: prefix + uuid.NewString()}
}

func (u UniversalID) IsHeader() bool {
	return strings.HasPrefix(u.LocalID, PrefixHeader)
}

func (u UniversalID) String() string {
	account := u.AccountID
	if len(account) > 12 {
		account = account[:12]
	}
	return account + "/" + u.LocalID
}

// DatabaseKey is the storage address of a packet.
type DatabaseKey struct {
	UID    UniversalID
	Status Status
}

func DraftKey(uid UniversalID) DatabaseKey {
	return DatabaseKey{UID: uid, Status: StatusDraft}
}

func SealedKey(uid UniversalID) DatabaseKey {
	return DatabaseKey{UID: uid, Status: StatusSealed}
}

func (k DatabaseKey) IsSealed() bool {
	return k.Status == StatusSealed
}

// WithLocalID addresses a sibling packet of the same account and status.
func (k DatabaseKey) WithLocalID(localID string) DatabaseKey {
	return DatabaseKey{UID: UniversalID{AccountID: k.UID.AccountID, LocalID: localID}, Status: k.Status}
}
