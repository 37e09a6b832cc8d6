package bulletin

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packetdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rewriteArchive(t *testing.T, data []byte, edit func(name string, doc []byte) []byte) []byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	for _, f := range zr.File {
		doc, err := readEntry(f)
		require.NoError(t, err)
		require.NoError(t, writeEntry(zw, f.Name, edit(f.Name, doc)))
	}
	require.NoError(t, zw.Close())
	return out.Bytes()
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newProvider(t, "author")
	src := packetdb.NewMemoryDatabase()

	b := sampleBulletin(c)
	b.AddPublicAttachment("photo.jpg", []byte("jpeg"))
	b.SetSealed()
	require.NoError(t, Save(ctx, src, c, b))

	data, err := ExportBytes(ctx, src, b.DatabaseKey())
	require.NoError(t, err)

	again, err := ExportBytes(ctx, src, b.DatabaseKey())
	require.NoError(t, err)
	assert.Equal(t, data, again)

	dst := packetdb.NewMemoryDatabase()
	res, err := ImportBytes(ctx, dst, c, data)
	require.NoError(t, err)
	assert.Equal(t, b.DatabaseKey(), res.Key)
	assert.Empty(t, res.Rejected)
	assert.Len(t, res.Imported, 4)
	assert.Equal(t, b.LocalID(), res.Imported[0])

	got, err := Load(ctx, dst, res.Key, c)
	require.NoError(t, err)
	assert.True(t, got.IsValid())
	for _, tag := range append(StandardFieldNames(), PrivateFieldNames()...) {
		assert.Equal(t, b.Get(tag), got.Get(tag), tag)
	}

	doc, err := dst.ReadRecord(ctx, res.Key)
	require.NoError(t, err)
	_, err = packet.LoadBytes(doc, nil, newProvider(t, "verifier"))
	assert.NoError(t, err)
}

func TestImport_FirstEntryIsHeader(t *testing.T) {
	ctx := context.Background()
	c := newProvider(t, "author")
	db := packetdb.NewMemoryDatabase()

	b := sampleBulletin(c)
	require.NoError(t, Save(ctx, db, c, b))
	data, err := ExportBytes(ctx, db, b.DatabaseKey())
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 3)
	assert.Equal(t, b.LocalID(), zr.File[0].Name)
}

func TestImport_RejectsTamperedChildKeepsOthers(t *testing.T) {
	ctx := context.Background()
	c := newProvider(t, "author")
	src := packetdb.NewMemoryDatabase()

	b := sampleBulletin(c)
	att := b.AddPublicAttachment("photo.jpg", []byte("jpeg"))
	require.NoError(t, Save(ctx, src, c, b))
	data, err := ExportBytes(ctx, src, b.DatabaseKey())
	require.NoError(t, err)

	data = rewriteArchive(t, data, func(name string, doc []byte) []byte {
		if name == att.LocalID {
			return bytes.Replace(doc, []byte("photo.jpg"), []byte("photo.png"), 1)
		}
		return doc
	})

	dst := packetdb.NewMemoryDatabase()
	res, err := ImportBytes(ctx, dst, c, data)
	require.NoError(t, err)
	assert.Equal(t, []string{att.LocalID}, res.Rejected)
	assert.Len(t, res.Imported, 3)

	ok, err := dst.HasRecord(ctx, res.Key.WithLocalID(att.LocalID))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := Load(ctx, dst, res.Key, c)
	require.NoError(t, err)
	assert.True(t, got.IsValid())
	require.Len(t, got.PublicAttachments(), 1)
	assert.False(t, got.PublicAttachments()[0].Valid)
}

func TestImport_RejectsUnreferencedEntry(t *testing.T) {
	ctx := context.Background()
	c := newProvider(t, "author")
	src := packetdb.NewMemoryDatabase()

	b := sampleBulletin(c)
	require.NoError(t, Save(ctx, src, c, b))
	data, err := ExportBytes(ctx, src, b.DatabaseKey())
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	for _, f := range zr.File {
		doc, err := readEntry(f)
		require.NoError(t, err)
		require.NoError(t, writeEntry(zw, f.Name, doc))
	}
	require.NoError(t, writeEntry(zw, "F-stray", []byte("junk")))
	require.NoError(t, zw.Close())

	res, err := ImportBytes(ctx, packetdb.NewMemoryDatabase(), c, out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"F-stray"}, res.Rejected)
}

func TestImport_DamagedHeaderRejectsArchive(t *testing.T) {
	ctx := context.Background()
	c := newProvider(t, "author")
	src := packetdb.NewMemoryDatabase()

	b := sampleBulletin(c)
	require.NoError(t, Save(ctx, src, c, b))
	data, err := ExportBytes(ctx, src, b.DatabaseKey())
	require.NoError(t, err)

	data = rewriteArchive(t, data, func(name string, doc []byte) []byte {
		if strings.HasPrefix(name, packet.PrefixHeader) {
			return bytes.Replace(doc, []byte("<AllPrivate>0"), []byte("<AllPrivate>1"), 1)
		}
		return doc
	})

	dst := packetdb.NewMemoryDatabase()
	_, err = ImportBytes(ctx, dst, c, data)
	require.ErrorIs(t, err, common.ErrDamagedArchive)

	n := 0
	require.NoError(t, dst.VisitAllRecords(ctx, func(packet.DatabaseKey) error { n++; return nil }))
	assert.Zero(t, n)
}

func TestImport_NotAZip(t *testing.T) {
	_, err := ImportBytes(context.Background(), packetdb.NewMemoryDatabase(), newProvider(t, "x"), []byte("plain"))
	require.ErrorIs(t, err, common.ErrDamagedArchive)
}

func TestPeekArchiveHeader(t *testing.T) {
	ctx := context.Background()
	c := newProvider(t, "author")
	db := packetdb.NewMemoryDatabase()

	b := sampleBulletin(c)
	b.SetSealed()
	require.NoError(t, Save(ctx, db, c, b))
	data, err := ExportBytes(ctx, db, b.DatabaseKey())
	require.NoError(t, err)

	hp, err := PeekArchiveHeader(data)
	require.NoError(t, err)
	assert.Equal(t, b.UniversalID(), hp.UID)
	assert.Equal(t, packet.StatusSealed, hp.Header.Status)
}

func TestExportXML(t *testing.T) {
	c := newProvider(t, "author")
	open := sampleBulletin(c)
	hidden := New(c.PublicKeyString())
	hidden.Set(TagTitle, "hidden title")

	var buf bytes.Buffer
	require.NoError(t, ExportXML(&buf, []*Bulletin{open, hidden}, false))
	s := buf.String()

	assert.True(t, strings.HasPrefix(s, "<?xml"))
	assert.Contains(t, s, "<ExportedBulletins>")
	assert.Contains(t, s, `<Field tag="title">Checkpoint closure</Field>`)
	assert.NotContains(t, s, "hidden title")
	assert.NotContains(t, s, "witness")

	buf.Reset()
	require.NoError(t, ExportXML(&buf, []*Bulletin{open, hidden}, true))
	assert.Contains(t, buf.String(), "hidden title")
	assert.Contains(t, buf.String(), `<PrivateField tag="privateinfo">witness: R. M.</PrivateField>`)
}
