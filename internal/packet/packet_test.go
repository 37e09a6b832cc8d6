package packet

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/cryptox"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProvider(t *testing.T, name string) *cryptox.MockSecurity {
	t.Helper()
	p := cryptox.NewMockSecurity(name)
	require.NoError(t, p.CreateKeyPair())
	return p
}

func sampleHeader(account string) *Packet {
	h := NewHeader(UniversalID{AccountID: account, LocalID: "B-1"})
	h.Header.Status = StatusSealed
	h.Header.LastSaved = time.UnixMilli(1700000000123)
	h.Header.HQPublicKey = "hq-key"
	h.Header.DataID = "F-pub"
	h.Header.DataSig = []byte{1, 2, 3}
	h.Header.PrivateDataID = "F-priv"
	h.Header.PrivateDataSig = []byte{4, 5, 6}
	h.Header.AddPublicAttachment("A-2")
	h.Header.AddPublicAttachment("A-1")
	h.Header.AddPublicAttachment("A-2")
	h.Header.AddPrivateAttachment("A-9")
	return h
}

func TestSerialize_HeaderIsDeterministicAndOrdered(t *testing.T) {
	a := sampleHeader("acct")
	b := sampleHeader("acct")
	b.Header.PublicAttachmentIDs = []string{"A-1", "A-2"}

	ba, err := Serialize(a)
	require.NoError(t, err)
	bb, err := Serialize(b)
	require.NoError(t, err)
	assert.Equal(t, string(ba), string(bb))

	want := "<BulletinHeaderPacket>\n" +
		"<PacketId>B-1</PacketId>\n" +
		"<AccountId>acct</AccountId>\n" +
		"<BulletinStatus>sealed</BulletinStatus>\n" +
		"<LastSavedTime>1700000000123</LastSavedTime>\n" +
		"<AllPrivate>1</AllPrivate>\n" +
		"<HQPublicKey>hq-key</HQPublicKey>\n" +
		"<DataPacketId>F-pub</DataPacketId>\n" +
		"<DataPacketSig>AQID</DataPacketSig>\n" +
		"<PrivateDataPacketId>F-priv</PrivateDataPacketId>\n" +
		"<PrivateDataPacketSig>BAUG</PrivateDataPacketSig>\n" +
		"<PublicAttachmentId>A-1</PublicAttachmentId>\n" +
		"<PublicAttachmentId>A-2</PublicAttachmentId>\n" +
		"<PrivateAttachmentId>A-9</PrivateAttachmentId>\n" +
		"</BulletinHeaderPacket>\n"
	assert.Equal(t, want, string(ba))
}

func TestSerialize_OptionalHeaderElementsOmitted(t *testing.T) {
	h := NewHeader(UniversalID{AccountID: "acct", LocalID: "B-2"})
	b, err := Serialize(h)
	require.NoError(t, err)

	s := string(b)
	assert.Contains(t, s, "<BulletinStatus>draft</BulletinStatus>")
	assert.Contains(t, s, "<LastSavedTime>0</LastSavedTime>")
	assert.Contains(t, s, "<AllPrivate>1</AllPrivate>")
	assert.NotContains(t, s, "HQPublicKey")
	assert.NotContains(t, s, "DataPacketId")
}

func TestSignAndLoad_RoundTrip(t *testing.T) {
	p := newProvider(t, "author")
	h := sampleHeader(p.PublicKeyString())

	doc, sig, err := Sign(h, p)
	require.NoError(t, err)

	got, err := Load(bytes.NewReader(doc), nil, p)
	require.NoError(t, err)
	assert.Equal(t, h.UID, got.UID)
	assert.Equal(t, KindHeader, got.Kind)
	assert.Equal(t, h.Header.LastSaved.UnixMilli(), got.Header.LastSaved.UnixMilli())
	got.Header.LastSaved = h.Header.LastSaved
	h.Header.PublicAttachmentIDs = []string{"A-1", "A-2"}
	assert.Empty(t, cmp.Diff(h.Header, got.Header))

	got, err = Load(bytes.NewReader(doc), sig, p)
	require.NoError(t, err)
	assert.Equal(t, h.UID, got.UID)

	extracted, err := ExtractSignature(doc)
	require.NoError(t, err)
	assert.Equal(t, sig, extracted)
}

func TestLoad_AnyMutatedByteFails(t *testing.T) {
	p := newProvider(t, "author")
	fd := NewFieldData(UniversalID{AccountID: p.PublicKeyString(), LocalID: "F-1"}, false)
	fd.Fields.Set("title", "Report")

	doc, _, err := Sign(fd, p)
	require.NoError(t, err)

	for i := range doc {
		mutated := bytes.Clone(doc)
		mutated[i] ^= 0x20
		if bytes.Equal(mutated, doc) {
			continue
		}
		_, err := LoadBytes(mutated, nil, p)
		assert.Error(t, err, "byte %d", i)
	}
}

func TestLoad_TrailerEditsFail(t *testing.T) {
	p := newProvider(t, "author")
	fd := NewFieldData(UniversalID{AccountID: p.PublicKeyString(), LocalID: "F-1"}, false)
	fd.Fields.Set("title", "Report")

	doc, _, err := Sign(fd, p)
	require.NoError(t, err)
	require.True(t, bytes.HasSuffix(doc, []byte("==-->\n")))

	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	last := len(doc) - len("==-->\n") - 1
	padBits := bytes.Clone(doc)
	padBits[last] = alphabet[strings.IndexByte(alphabet, doc[last])^1]

	tests := []struct {
		name string
		doc  []byte
	}{
		{name: "newline to space", doc: append(bytes.Clone(doc[:len(doc)-1]), ' ')},
		{name: "newline dropped", doc: doc[:len(doc)-1]},
		{name: "extra newline", doc: append(bytes.Clone(doc), '\n')},
		{name: "unused signature bits", doc: padBits},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotEqual(t, doc, tt.doc)
			got, err := LoadBytes(tt.doc, nil, p)
			assert.ErrorIs(t, err, common.ErrDamagedPacket)
			assert.Nil(t, got)
		})
	}
}

func TestFieldData_ValuesXMLCannotCarryRoundTrip(t *testing.T) {
	p := newProvider(t, "author")
	fd := NewFieldData(UniversalID{AccountID: p.PublicKeyString(), LocalID: "F-1"}, false)
	fd.Fields.Set("title", "bell\a and bad \xff utf8")
	fd.Fields.Set("summary", "nul\x00 and \ufffe")
	fd.Fields.Set("author", "line one\r\nline two\ttabbed")

	doc, _, err := Sign(fd, p)
	require.NoError(t, err)
	assert.Contains(t, string(doc), `encoding="base64"`)

	got, err := LoadBytes(doc, nil, p)
	require.NoError(t, err)
	assert.Equal(t, fd.Fields.Fields, got.Fields.Fields)

	again, err := Serialize(got)
	require.NoError(t, err)
	body, _, err := Split(doc)
	require.NoError(t, err)
	assert.Equal(t, string(body), string(again))
}

func TestFieldData_UnknownEncodingIsDamaged(t *testing.T) {
	_, err := parse([]byte("<PublicDataPacket>\n<PacketId>F-1</PacketId>\n<AccountId>a</AccountId>\n" +
		"<Field tag=\"title\" encoding=\"rot13\">x</Field>\n</PublicDataPacket>\n"))
	assert.Error(t, err)
}

func TestLoad_RejectsForeignAndUnexpected(t *testing.T) {
	author := newProvider(t, "author")
	forger := newProvider(t, "forger")

	fd := NewFieldData(UniversalID{AccountID: author.PublicKeyString(), LocalID: "F-1"}, false)
	fd.Fields.Set("title", "Report")

	forged, _, err := Sign(fd, forger)
	require.NoError(t, err)
	_, err = LoadBytes(forged, nil, author)
	assert.ErrorIs(t, err, common.ErrDamagedPacket)

	doc, _, err := Sign(fd, author)
	require.NoError(t, err)
	_, err = LoadBytes(doc, []byte("other signature"), author)
	assert.ErrorIs(t, err, common.ErrDamagedPacket)

	_, err = LoadFor(doc, UniversalID{AccountID: author.PublicKeyString(), LocalID: "F-2"}, KindPublicData, nil, author)
	assert.ErrorIs(t, err, common.ErrDamagedPacket)

	_, err = LoadFor(doc, fd.UID, KindPrivateData, nil, author)
	assert.ErrorIs(t, err, common.ErrDamagedPacket)

	got, err := LoadFor(doc, fd.UID, KindPublicData, nil, author)
	require.NoError(t, err)
	assert.Equal(t, "Report", got.Fields.Get("title"))
}

func TestLoad_Malformed(t *testing.T) {
	p := newProvider(t, "author")

	tests := []struct {
		name string
		doc  string
	}{
		{name: "no trailer", doc: "<PublicDataPacket></PublicDataPacket>\n"},
		{name: "bad base64", doc: "<PublicDataPacket></PublicDataPacket>\n<!--sig=%%%-->\n"},
		{name: "unterminated", doc: "<PublicDataPacket></PublicDataPacket>\n<!--sig=AAAA"},
		{name: "unknown root", doc: "<Other></Other>\n<!--sig=AAAA-->\n"},
		{name: "no ids", doc: "<PublicDataPacket>\n</PublicDataPacket>\n<!--sig=AAAA-->\n"},
		{name: "truncated xml", doc: "<PublicDataPacket>\n<PacketId>F-1</PacketId>\n<!--sig=AAAA-->\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadBytes([]byte(tt.doc), nil, p)
			assert.ErrorIs(t, err, common.ErrDamagedPacket)
			assert.Nil(t, got)
		})
	}
}

func TestFieldData_EscapingAndOrder(t *testing.T) {
	p := newProvider(t, "author")
	fd := NewFieldData(UniversalID{AccountID: p.PublicKeyString(), LocalID: "F-1"}, false)
	fd.Fields.Set("title", `<b>"quoted" & more</b>`)
	fd.Fields.Set("author", "Ana")
	fd.Fields.Set("title", "replaced <tag>")

	doc, _, err := Sign(fd, p)
	require.NoError(t, err)

	got, err := LoadBytes(doc, nil, p)
	require.NoError(t, err)
	assert.Equal(t, []Field{{Tag: "title", Value: "replaced <tag>"}, {Tag: "author", Value: "Ana"}}, got.Fields.Fields)
	assert.Equal(t, "", got.Fields.Get("missing"))
}

func TestPeek_DoesNotVerify(t *testing.T) {
	forger := newProvider(t, "forger")
	h := sampleHeader("someone-else")
	doc, _, err := Sign(h, forger)
	require.NoError(t, err)

	got, err := Peek(doc)
	require.NoError(t, err)
	assert.Equal(t, "B-1", got.UID.LocalID)
}

func TestIDs(t *testing.T) {
	uid := NewUniversalID("acct", PrefixHeader)
	assert.True(t, uid.IsHeader())
	assert.Len(t, uid.LocalID, len(PrefixHeader)+36)
	assert.NotEqual(t, uid, NewUniversalID("acct", PrefixHeader))

	k := SealedKey(uid)
	assert.True(t, k.IsSealed())
	assert.False(t, DraftKey(uid).IsSealed())
	assert.Equal(t, "F-1", k.WithLocalID("F-1").UID.LocalID)
	assert.Equal(t, StatusSealed, k.WithLocalID("F-1").Status)

	_, err := ParseStatus("archived")
	assert.Error(t, err)
}
