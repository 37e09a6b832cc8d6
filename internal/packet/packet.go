package packet

import (
	"slices"
	"time"
)

// Kind tags the variant held by a Packet.
type Kind int

const (
	KindHeader Kind = iota + 1
	KindPublicData
	KindPrivateData
	KindAttachment
)

func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindPublicData:
		return "public-data"
	case KindPrivateData:
		return "private-data"
	case KindAttachment:
		return "attachment"
	}
	return "unknown"
}

func (k Kind) rootElement() string {
	switch k {
	case KindHeader:
		return "BulletinHeaderPacket"
	case KindPublicData:
		return "PublicDataPacket"
	case KindPrivateData:
		return "PrivateDataPacket"
	case KindAttachment:
		return "AttachmentPacket"
	}
	return ""
}

func kindFromRoot(name string) (Kind, bool) {
	for _, k := range []Kind{KindHeader, KindPublicData, KindPrivateData, KindAttachment} {
		if k.rootElement() == name {
			return k, true
		}
	}
	return 0, false
}

// Packet is the tagged variant. Exactly one of Header, Fields or Attachment
// is set, matching Kind.
type Packet struct {
	Kind       Kind
	UID        UniversalID
	Header     *Header
	Fields     *FieldData
	Attachment *Attachment
}

// Header links the parts of a bulletin.
type Header struct {
	Status               Status
	LastSaved            time.Time
	AllPrivate           bool
	HQPublicKey          string
	DataID               string
	DataSig              []byte
	PrivateDataID        string
	PrivateDataSig       []byte
	PublicAttachmentIDs  []string
	PrivateAttachmentIDs []string
}

// Field is one named value of a field-data packet.
type Field struct {
	Tag   string
	Value string
}

// FieldData holds the fields of a data packet. When Encrypted is set the
// persisted form carries only EncryptedData and the wrapped session keys;
// Fields is populated after Open.
type FieldData struct {
	Encrypted     bool
	Fields        []Field
	SessionKey    []byte
	HQSessionKey  []byte
	EncryptedData []byte
}

// Attachment is an encrypted binary blob.
type Attachment struct {
	Label        string
	SessionKey   []byte
	HQSessionKey []byte
	Data         []byte
}

func NewHeader(uid UniversalID) *Packet {
	return &Packet{Kind: KindHeader, UID: uid, Header: &Header{Status: StatusDraft, AllPrivate: true}}
}

func NewFieldData(uid UniversalID, private bool) *Packet {
	kind := KindPublicData
	if private {
		kind = KindPrivateData
	}
	return &Packet{Kind: kind, UID: uid, Fields: &FieldData{}}
}

// Get returns the value of tag, or "" when absent.
func (f *FieldData) Get(tag string) string {
	for _, fld := range f.Fields {
		if fld.Tag == tag {
			return fld.Value
		}
	}
	return ""
}

// Set replaces or appends tag keeping insertion order.
func (f *FieldData) Set(tag, value string) {
	for i := range f.Fields {
		if f.Fields[i].Tag == tag {
			f.Fields[i].Value = value
			return
		}
	}
	f.Fields = append(f.Fields, Field{Tag: tag, Value: value})
}

// AddPublicAttachment records id once.
func (h *Header) AddPublicAttachment(id string) {
	if !slices.Contains(h.PublicAttachmentIDs, id) {
		h.PublicAttachmentIDs = append(h.PublicAttachmentIDs, id)
	}
}

// AddPrivateAttachment records id once.
func (h *Header) AddPrivateAttachment(id string) {
	if !slices.Contains(h.PrivateAttachmentIDs, id) {
		h.PrivateAttachmentIDs = append(h.PrivateAttachmentIDs, id)
	}
}

// AllAttachmentIDs lists public then private attachment ids, each sorted.
func (h *Header) AllAttachmentIDs() []string {
	ids := sortedUnique(h.PublicAttachmentIDs)
	return append(ids, sortedUnique(h.PrivateAttachmentIDs)...)
}

func sortedUnique(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
