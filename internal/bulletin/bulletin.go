// Package bulletin assembles header, field-data and attachment packets into
// bulletins and moves them in and out of a packet database.
package bulletin

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
)

// AttachmentProxy references an attachment packet. Data holds the plain
// bytes of an attachment added since the last save; Doc holds the signed
// packet once built or loaded.
type AttachmentProxy struct {
	LocalID string
	Label   string
	Valid   bool

	data []byte
	doc  []byte
}

// Bulletin is the in-memory aggregate of a header, its public and private
// field data, and attachment proxies.
type Bulletin struct {
	uid           packet.UniversalID
	dataID        string
	privateDataID string
	status        packet.Status
	allPrivate    bool
	hqPublicKey   string
	lastSaved     time.Time

	public  []packet.Field
	private []packet.Field

	publicAttachments  []*AttachmentProxy
	privateAttachments []*AttachmentProxy

	publicDataValid  bool
	privateDataValid bool
}

// New creates a draft, all-private bulletin for accountID with today's
// entry date and an event date of January 1st of this year.
func New(accountID string) *Bulletin {
	now := time.Now()
	b := &Bulletin{
		uid:              packet.NewUniversalID(accountID, packet.PrefixHeader),
		dataID:           packet.NewUniversalID(accountID, packet.PrefixFieldData).LocalID,
		privateDataID:    packet.NewUniversalID(accountID, packet.PrefixFieldData).LocalID,
		status:           packet.StatusDraft,
		allPrivate:       true,
		publicDataValid:  true,
		privateDataValid: true,
	}
	b.Set(TagEntryDate, now.Format(common.DateLayout))
	b.Set(TagEventDate, time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.Local).Format(common.DateLayout))
	return b
}

func (b *Bulletin) UniversalID() packet.UniversalID { return b.uid }
func (b *Bulletin) LocalID() string                 { return b.uid.LocalID }
func (b *Bulletin) AccountID() string               { return b.uid.AccountID }
func (b *Bulletin) Status() packet.Status           { return b.status }
func (b *Bulletin) IsDraft() bool                   { return b.status == packet.StatusDraft }
func (b *Bulletin) IsSealed() bool                  { return b.status == packet.StatusSealed }
func (b *Bulletin) SetDraft()                       { b.status = packet.StatusDraft }
func (b *Bulletin) SetSealed()                      { b.status = packet.StatusSealed }
func (b *Bulletin) AllPrivate() bool                { return b.allPrivate }
func (b *Bulletin) SetAllPrivate(v bool)            { b.allPrivate = v }
func (b *Bulletin) HQPublicKey() string             { return b.hqPublicKey }
func (b *Bulletin) SetHQPublicKey(key string)       { b.hqPublicKey = key }
func (b *Bulletin) LastSaved() time.Time            { return b.lastSaved }
func (b *Bulletin) PublicDataValid() bool           { return b.publicDataValid }
func (b *Bulletin) PrivateDataValid() bool          { return b.privateDataValid }

// IsValid reports whether both field-data packets verified on load.
func (b *Bulletin) IsValid() bool {
	return b.publicDataValid && b.privateDataValid
}

// DatabaseKey is the key of the header under the current status.
func (b *Bulletin) DatabaseKey() packet.DatabaseKey {
	return packet.DatabaseKey{UID: b.uid, Status: b.status}
}

// Get returns a field value; tags are case-insensitive and unknown tags
// read as "".
func (b *Bulletin) Get(tag string) string {
	tag = strings.ToLower(tag)
	for _, list := range [][]packet.Field{b.public, b.private} {
		for _, f := range list {
			if f.Tag == tag {
				return f.Value
			}
		}
	}
	return ""
}

// Set stores a field value. Unknown tags are ignored.
func (b *Bulletin) Set(tag, value string) {
	tag = strings.ToLower(tag)
	switch {
	case IsStandardField(tag):
		b.public = setField(b.public, tag, value)
	case IsPrivateField(tag):
		b.private = setField(b.private, tag, value)
	}
}

func setField(fields []packet.Field, tag, value string) []packet.Field {
	for i := range fields {
		if fields[i].Tag == tag {
			fields[i].Value = value
			return fields
		}
	}
	return append(fields, packet.Field{Tag: tag, Value: value})
}

// AddPublicAttachment queues data to be stored with the next save.
func (b *Bulletin) AddPublicAttachment(label string, data []byte) *AttachmentProxy {
	a := newProxy(b.uid.AccountID, label, data)
	b.publicAttachments = append(b.publicAttachments, a)
	return a
}

// AddPrivateAttachment queues data to be stored with the next save.
func (b *Bulletin) AddPrivateAttachment(label string, data []byte) *AttachmentProxy {
	a := newProxy(b.uid.AccountID, label, data)
	b.privateAttachments = append(b.privateAttachments, a)
	return a
}

func newProxy(accountID, label string, data []byte) *AttachmentProxy {
	return &AttachmentProxy{
		LocalID: packet.NewUniversalID(accountID, packet.PrefixAttachment).LocalID,
		Label:   label,
		Valid:   true,
		data:    data,
	}
}

func (b *Bulletin) PublicAttachments() []*AttachmentProxy  { return b.publicAttachments }
func (b *Bulletin) PrivateAttachments() []*AttachmentProxy { return b.privateAttachments }

// EventDate parses the eventdate field.
func (b *Bulletin) EventDate() (time.Time, bool) {
	t, err := time.ParseInLocation(common.DateLayout, b.Get(TagEventDate), time.Local)
	return t, err == nil
}

// Matches reports whether text occurs, ignoring case, in any field. Empty
// text matches everything.
func (b *Bulletin) Matches(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return true
	}
	for _, list := range [][]packet.Field{b.public, b.private} {
		for _, f := range list {
			if strings.Contains(strings.ToLower(f.Value), text) {
				return true
			}
		}
	}
	return false
}
