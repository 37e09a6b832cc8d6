package bulletin

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/cryptox"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packetdb"
)

// MaxArchiveEntry bounds a single packet read from an archive.
const MaxArchiveEntry = 64 << 20

var zipEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// ImportResult describes what Import wrote.
type ImportResult struct {
	Key      packet.DatabaseKey
	Imported []string
	Rejected []string
}

// Export writes the bulletin stored under key as a zip archive. The first
// entry is the header, named by its local id; each referenced packet that
// exists follows under its own local id. Entries carry a fixed timestamp so
// equal packet sets produce equal archives.
func Export(ctx context.Context, db packetdb.Database, key packet.DatabaseKey, w io.Writer) error {
	doc, err := db.ReadRecord(ctx, key)
	if err != nil {
		return err
	}
	hp, err := packet.Peek(doc)
	if err != nil {
		return err
	}
	if hp.Header == nil {
		return fmt.Errorf("%w: %s is not a header", common.ErrDamagedPacket, key.UID)
	}

	zw := zip.NewWriter(w)
	if err := writeEntry(zw, key.UID.LocalID, doc); err != nil {
		return err
	}
	for _, id := range headerChildIDs(hp.Header) {
		child, err := db.ReadRecord(ctx, key.WithLocalID(id))
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := writeEntry(zw, id, child); err != nil {
			return err
		}
	}
	return zw.Close()
}

// ExportBytes is Export into memory.
func ExportBytes(ctx context.Context, db packetdb.Database, key packet.DatabaseKey) ([]byte, error) {
	var buf bytes.Buffer
	if err := Export(ctx, db, key, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeEntry(zw *zip.Writer, name string, doc []byte) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: zipEpoch})
	if err != nil {
		return err
	}
	_, err = fw.Write(doc)
	return err
}

// Import validates an archive produced by Export and writes it into db.
//
// The header entry must verify against its own account or the whole archive
// is rejected with ErrDamagedArchive. Every other entry is checked
// independently: it must be referenced by the header, carry the id and kind
// the header implies, verify against the author key and, for field data,
// match the signature recorded in the header. Entries that fail are listed
// in Rejected and not written. The header is written last.
func Import(ctx context.Context, db packetdb.Database, v cryptox.Verifier, r io.ReaderAt, size int64) (*ImportResult, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDamagedArchive, err)
	}
	if len(zr.File) == 0 {
		return nil, fmt.Errorf("%w: empty archive", common.ErrDamagedArchive)
	}

	first := zr.File[0]
	if !strings.HasPrefix(first.Name, packet.PrefixHeader) {
		return nil, fmt.Errorf("%w: first entry %q is not a header", common.ErrDamagedArchive, first.Name)
	}
	headerDoc, err := readEntry(first)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDamagedArchive, err)
	}
	hp, err := packet.LoadBytes(headerDoc, nil, v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDamagedArchive, err)
	}
	if hp.Kind != packet.KindHeader || hp.UID.LocalID != first.Name {
		return nil, fmt.Errorf("%w: header entry %q does not match its packet", common.ErrDamagedArchive, first.Name)
	}
	h := hp.Header

	expected := expectedChildren(h)

	res := &ImportResult{Key: packet.DatabaseKey{UID: hp.UID, Status: h.Status}}
	var accepted []string
	var docs [][]byte
	for _, f := range zr.File[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		want, ok := expected[f.Name]
		if !ok {
			res.Rejected = append(res.Rejected, f.Name)
			continue
		}
		doc, err := readEntry(f)
		if err != nil {
			res.Rejected = append(res.Rejected, f.Name)
			continue
		}
		uid := packet.UniversalID{AccountID: hp.UID.AccountID, LocalID: f.Name}
		if _, err := packet.LoadFor(doc, uid, want.kind, want.sig, v); err != nil {
			res.Rejected = append(res.Rejected, f.Name)
			continue
		}
		accepted = append(accepted, f.Name)
		docs = append(docs, doc)
		delete(expected, f.Name)
	}

	err = packetdb.Atomic(ctx, db, func(ctx context.Context, db packetdb.Database) error {
		for i, name := range accepted {
			if err := db.WriteRecord(ctx, res.Key.WithLocalID(name), docs[i]); err != nil {
				return err
			}
		}
		return db.WriteRecord(ctx, res.Key, headerDoc)
	})
	if err != nil {
		return nil, err
	}
	res.Imported = append(res.Imported, accepted...)
	res.Imported = append([]string{hp.UID.LocalID}, res.Imported...)
	return res, nil
}

// ImportBytes is Import from memory.
func ImportBytes(ctx context.Context, db packetdb.Database, v cryptox.Verifier, data []byte) (*ImportResult, error) {
	return Import(ctx, db, v, bytes.NewReader(data), int64(len(data)))
}

// PeekArchiveHeader returns the unverified header packet of an archive.
func PeekArchiveHeader(data []byte) (*packet.Packet, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil || len(zr.File) == 0 {
		return nil, common.ErrDamagedArchive
	}
	doc, err := readEntry(zr.File[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDamagedArchive, err)
	}
	p, err := packet.Peek(doc)
	if err != nil || p.Header == nil {
		return nil, common.ErrDamagedArchive
	}
	return p, nil
}

type childSpec struct {
	kind packet.Kind
	sig  []byte
}

func expectedChildren(h *packet.Header) map[string]childSpec {
	out := map[string]childSpec{}
	if h.DataID != "" {
		out[h.DataID] = childSpec{packet.KindPublicData, h.DataSig}
	}
	if h.PrivateDataID != "" {
		out[h.PrivateDataID] = childSpec{packet.KindPrivateData, h.PrivateDataSig}
	}
	for _, id := range h.AllAttachmentIDs() {
		out[id] = childSpec{kind: packet.KindAttachment}
	}
	return out
}

func readEntry(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > MaxArchiveEntry {
		return nil, common.ErrBulletinTooLarge
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, MaxArchiveEntry+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxArchiveEntry {
		return nil, common.ErrBulletinTooLarge
	}
	return data, nil
}
