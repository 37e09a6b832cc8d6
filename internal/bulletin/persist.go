package bulletin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/cryptox"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packetdb"
)

// Record is one signed packet document of a bulletin.
type Record struct {
	LocalID string
	Doc     []byte
}

// Packets is the signed packet set of a bulletin.
type Packets struct {
	Key      packet.DatabaseKey
	Header   []byte
	Children []Record
}

// Build signs the bulletin in two phases: the field-data and attachment
// packets first, then a header that references their final ids and
// signatures.
func Build(b *Bulletin, c cryptox.Provider, now time.Time) (*Packets, error) {
	account := b.uid.AccountID
	if c.PublicKeyString() != account {
		return nil, fmt.Errorf("bulletin %s belongs to another account", b.uid)
	}

	pub := packet.NewFieldData(packet.UniversalID{AccountID: account, LocalID: b.dataID}, false)
	pub.Fields.Fields = slices.Clone(b.public)
	if b.allPrivate {
		if err := pub.SealFields(c, b.hqPublicKey); err != nil {
			return nil, err
		}
	}
	pubDoc, pubSig, err := packet.Sign(pub, c)
	if err != nil {
		return nil, err
	}

	priv := packet.NewFieldData(packet.UniversalID{AccountID: account, LocalID: b.privateDataID}, true)
	priv.Fields.Fields = slices.Clone(b.private)
	if err := priv.SealFields(c, b.hqPublicKey); err != nil {
		return nil, err
	}
	privDoc, privSig, err := packet.Sign(priv, c)
	if err != nil {
		return nil, err
	}

	out := &Packets{
		Key:      b.DatabaseKey(),
		Children: []Record{{LocalID: b.dataID, Doc: pubDoc}, {LocalID: b.privateDataID, Doc: privDoc}},
	}

	hp := packet.NewHeader(b.uid)
	h := hp.Header
	h.Status = b.status
	h.LastSaved = now
	h.AllPrivate = b.allPrivate
	h.HQPublicKey = b.hqPublicKey
	h.DataID, h.DataSig = b.dataID, pubSig
	h.PrivateDataID, h.PrivateDataSig = b.privateDataID, privSig

	for _, a := range b.publicAttachments {
		if err := a.build(c, account, b.hqPublicKey); err != nil {
			return nil, err
		}
		if a.doc != nil {
			h.AddPublicAttachment(a.LocalID)
			out.Children = append(out.Children, Record{LocalID: a.LocalID, Doc: a.doc})
		}
	}
	for _, a := range b.privateAttachments {
		if err := a.build(c, account, b.hqPublicKey); err != nil {
			return nil, err
		}
		if a.doc != nil {
			h.AddPrivateAttachment(a.LocalID)
			out.Children = append(out.Children, Record{LocalID: a.LocalID, Doc: a.doc})
		}
	}

	out.Header, _, err = packet.Sign(hp, c)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *AttachmentProxy) build(c cryptox.Provider, account, hqKey string) error {
	if a.data == nil {
		return nil
	}
	uid := packet.UniversalID{AccountID: account, LocalID: a.LocalID}
	p, err := packet.NewAttachment(uid, a.Label, a.data, c, hqKey)
	if err != nil {
		return err
	}
	doc, _, err := packet.Sign(p, c)
	if err != nil {
		return err
	}
	a.doc, a.data = doc, nil
	return nil
}

// Save writes the header and then the other packets under the bulletin's
// current status. Saving a sealed bulletin removes its draft copy.
func Save(ctx context.Context, db packetdb.Database, c cryptox.Provider, b *Bulletin) error {
	now := time.Now().Truncate(time.Millisecond)
	pk, err := Build(b, c, now)
	if err != nil {
		return fmt.Errorf("build %s: %w", b.uid, err)
	}

	err = packetdb.Atomic(ctx, db, func(ctx context.Context, db packetdb.Database) error {
		if err := db.WriteRecord(ctx, pk.Key, pk.Header); err != nil {
			return err
		}
		for _, r := range pk.Children {
			if err := db.WriteRecord(ctx, pk.Key.WithLocalID(r.LocalID), r.Doc); err != nil {
				return err
			}
		}

		if b.IsSealed() {
			draft := packet.DraftKey(b.uid)
			for _, id := range append([]string{b.uid.LocalID}, b.childIDs()...) {
				if err := db.DeleteRecord(ctx, draft.WithLocalID(id)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	b.lastSaved = now
	b.publicDataValid, b.privateDataValid = true, true
	return nil
}

func (b *Bulletin) childIDs() []string {
	ids := []string{b.dataID, b.privateDataID}
	for _, a := range b.publicAttachments {
		ids = append(ids, a.LocalID)
	}
	for _, a := range b.privateAttachments {
		ids = append(ids, a.LocalID)
	}
	return ids
}

func headerChildIDs(h *packet.Header) []string {
	var ids []string
	if h.DataID != "" {
		ids = append(ids, h.DataID)
	}
	if h.PrivateDataID != "" {
		ids = append(ids, h.PrivateDataID)
	}
	return append(ids, h.AllAttachmentIDs()...)
}

// Load reads the bulletin whose header is stored under key.
//
// The header must verify or ErrDamagedBulletin is returned. The two
// field-data packets are checked against the signatures recorded in the
// header and their validity is tracked separately; a damaged or missing
// data packet leaves the bulletin loaded but not valid. A private section
// that cannot be decrypted is returned as an error.
func Load(ctx context.Context, db packetdb.Database, key packet.DatabaseKey, c cryptox.Provider) (*Bulletin, error) {
	doc, err := db.ReadRecord(ctx, key)
	if err != nil {
		return nil, err
	}
	hp, err := packet.LoadFor(doc, key.UID, packet.KindHeader, nil, c)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDamagedBulletin, err)
	}
	h := hp.Header

	b := &Bulletin{
		uid:           key.UID,
		dataID:        h.DataID,
		privateDataID: h.PrivateDataID,
		status:        h.Status,
		allPrivate:    h.AllPrivate,
		hqPublicKey:   h.HQPublicKey,
		lastSaved:     h.LastSaved,
	}

	pub, err := loadData(ctx, db, key.WithLocalID(h.DataID), packet.KindPublicData, h.DataSig, c)
	if err != nil {
		return nil, err
	}
	if pub != nil {
		b.public, b.publicDataValid = pub.Fields.Fields, true
	}

	priv, err := loadData(ctx, db, key.WithLocalID(h.PrivateDataID), packet.KindPrivateData, h.PrivateDataSig, c)
	if err != nil {
		return nil, err
	}
	if priv != nil {
		b.private, b.privateDataValid = priv.Fields.Fields, true
	}

	if !b.IsValid() {
		b.hqPublicKey = ""
	}

	for _, id := range sortedIDs(h.PublicAttachmentIDs) {
		b.publicAttachments = append(b.publicAttachments, loadProxy(ctx, db, key.WithLocalID(id), c))
	}
	for _, id := range sortedIDs(h.PrivateAttachmentIDs) {
		b.privateAttachments = append(b.privateAttachments, loadProxy(ctx, db, key.WithLocalID(id), c))
	}

	return b, nil
}

// loadData returns nil without error when the packet is missing or damaged.
func loadData(ctx context.Context, db packetdb.Database, key packet.DatabaseKey, kind packet.Kind, sig []byte, c cryptox.Provider) (*packet.Packet, error) {
	if key.UID.LocalID == "" {
		return nil, nil
	}
	doc, err := db.ReadRecord(ctx, key)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p, err := packet.LoadFor(doc, key.UID, kind, sig, c)
	if err != nil {
		return nil, nil
	}
	if err := p.OpenFields(c); err != nil {
		return nil, fmt.Errorf("open %s: %w", key.UID, err)
	}
	return p, nil
}

func loadProxy(ctx context.Context, db packetdb.Database, key packet.DatabaseKey, c cryptox.Provider) *AttachmentProxy {
	a := &AttachmentProxy{LocalID: key.UID.LocalID}
	doc, err := db.ReadRecord(ctx, key)
	if err != nil {
		return a
	}
	p, err := packet.LoadFor(doc, key.UID, packet.KindAttachment, nil, c)
	if err != nil {
		return a
	}
	a.Label, a.doc, a.Valid = p.Attachment.Label, doc, true
	return a
}

func sortedIDs(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// AttachmentData decrypts the contents of a loaded or saved attachment.
func AttachmentData(a *AttachmentProxy, c cryptox.Provider) ([]byte, error) {
	if a.data != nil {
		return slices.Clone(a.data), nil
	}
	if a.doc == nil {
		return nil, common.ErrNotFound
	}
	p, err := packet.Peek(a.doc)
	if err != nil {
		return nil, err
	}
	return p.OpenAttachment(c)
}

// Delete removes every packet of b under both statuses.
func Delete(ctx context.Context, db packetdb.Database, b *Bulletin) error {
	ids := append([]string{b.uid.LocalID}, b.childIDs()...)
	return packetdb.Atomic(ctx, db, func(ctx context.Context, db packetdb.Database) error {
		for _, key := range []packet.DatabaseKey{packet.DraftKey(b.uid), packet.SealedKey(b.uid)} {
			for _, id := range ids {
				if err := db.DeleteRecord(ctx, key.WithLocalID(id)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// DeleteKey removes the header stored under key and every packet it
// references under the same status.
func DeleteKey(ctx context.Context, db packetdb.Database, key packet.DatabaseKey) error {
	doc, err := db.ReadRecord(ctx, key)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if hp, err := packet.Peek(doc); err == nil && hp.Header != nil {
		for _, id := range headerChildIDs(hp.Header) {
			if err := db.DeleteRecord(ctx, key.WithLocalID(id)); err != nil {
				return err
			}
		}
	}
	return db.DeleteRecord(ctx, key)
}
