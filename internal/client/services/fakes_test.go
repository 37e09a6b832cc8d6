package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"sync"
	"testing"

	"github.com/dmitrijs2005/bulletinkeeper/internal/bulletin"
	"github.com/dmitrijs2005/bulletinkeeper/internal/client/store"
	"github.com/dmitrijs2005/bulletinkeeper/internal/cryptox"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packetdb"
	"github.com/dmitrijs2005/bulletinkeeper/internal/transfer"
	"github.com/stretchr/testify/require"
)

// fakeServer is an in-process Caller that serves archives by local id and
// collects uploads. It does not check signatures.
type fakeServer struct {
	mu       sync.Mutex
	archives map[string][]byte
	uploads  map[string]*transfer.Partial
	calls    map[string]int
	// respond overrides the answer to a command when set
	respond map[string]transfer.Response
	err     error
	closed  bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		archives: map[string][]byte{},
		uploads:  map[string]*transfer.Partial{},
		calls:    map[string]int{},
		respond:  map[string]transfer.Response{},
	}
}

func (f *fakeServer) Call(_ context.Context, _ string, params []any, _ []byte) (transfer.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	command, _ := transfer.Args(params).String(0)
	f.calls[command]++
	if f.err != nil {
		return transfer.Response{}, f.err
	}
	if r, ok := f.respond[command]; ok {
		return r, nil
	}
	args := transfer.Args(params[1:])

	switch command {
	case transfer.CmdGetBulletinChunk:
		localID, _ := args.String(1)
		offset, _ := args.Int(2)
		maxChunk, _ := args.Int(3)
		data, ok := f.archives[localID]
		if !ok {
			return transfer.Response{Code: transfer.NotFound}, nil
		}
		code, c := transfer.SliceChunk(data, offset, int(maxChunk))
		return transfer.Response{Code: code, Values: transfer.ChunkValues(c)}, nil

	case transfer.CmdPutBulletinChunk:
		localID, _ := args.String(1)
		total, _ := args.Int(2)
		offset, _ := args.Int(3)
		size, _ := args.Int(4)
		text, _ := args.String(5)
		chunk, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return transfer.Response{Code: transfer.InvalidData}, nil
		}
		p, err := transfer.AppendChunk(f.uploads[localID], total, offset, size, chunk, 0)
		if err != nil {
			return transfer.Response{Code: transfer.InvalidData}, nil
		}
		if !p.Complete() {
			f.uploads[localID] = p
			return transfer.Response{Code: transfer.ChunkOK}, nil
		}
		delete(f.uploads, localID)
		f.archives[localID] = p.Data
		return transfer.Response{Code: transfer.OK}, nil
	}
	return transfer.Response{Code: transfer.UnknownCommand}, nil
}

func (f *fakeServer) Close() error {
	f.closed = true
	return nil
}

func (f *fakeServer) callCount(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[command]
}

func (f *fakeServer) archive(localID string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.archives[localID]
}

func newProvider(t *testing.T, name string) *cryptox.MockSecurity {
	t.Helper()
	p := cryptox.NewMockSecurity(name)
	require.NoError(t, p.CreateKeyPair())
	return p
}

// publish saves a sealed bulletin by author and puts its archive on srv.
func (f *fakeServer) publish(t *testing.T, author cryptox.Provider, title string) packet.UniversalID {
	t.Helper()
	ctx := context.Background()
	db := packetdb.NewMemoryDatabase()
	b := bulletin.New(author.PublicKeyString())
	b.Set(bulletin.TagTitle, title)
	b.SetSealed()
	require.NoError(t, bulletin.Save(ctx, db, author, b))
	data, err := bulletin.ExportBytes(ctx, db, b.DatabaseKey())
	require.NoError(t, err)

	f.mu.Lock()
	f.archives[b.LocalID()] = data
	f.mu.Unlock()
	return b.UniversalID()
}

func exportArchive(ctx context.Context, st *store.Store, uid packet.UniversalID) ([]byte, error) {
	var buf bytes.Buffer
	err := st.ExportArchive(ctx, uid, &buf)
	return buf.Bytes(), err
}
