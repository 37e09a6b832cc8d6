package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/cryptox"
	"github.com/dmitrijs2005/bulletinkeeper/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	c := &config.Config{}
	c.LoadDefaults()
	c.EndpointAddrGRPC = "127.0.0.1:0"
	c.MetricsAddr = "127.0.0.1:0"
	c.LogFile = filepath.Join(dir, "server.log")
	c.StorageBackend = config.StorageMemory
	c.KeyPairFile = filepath.Join(dir, "server.keypair")
	c.KeyPairPassphrase = "test passphrase"
	c.StagingTTL = time.Hour
	return c
}

func writePeerKey(t *testing.T, dir, name, ip string) string {
	t.Helper()
	peer := cryptox.NewMockSecurity(name)
	require.NoError(t, peer.CreateKeyPair())
	code, err := cryptox.ComputePublicCode(peer.PublicKeyString())
	require.NoError(t, err)
	file := filepath.Join(dir, "code="+code+"-ip="+ip+".txt")
	require.NoError(t, os.WriteFile(file, []byte(peer.PublicKeyString()+"\n"), 0o600))
	return peer.PublicKeyString()
}

func TestNewApp_MemoryBackend(t *testing.T) {
	c := testConfig(t)
	c.MirrorsWhoCallUsDir = t.TempDir()
	first := writePeerKey(t, c.MirrorsWhoCallUsDir, "peer1", "10.0.0.1")

	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)

	_, err = os.Stat(c.KeyPairFile)
	assert.NoError(t, err, "key pair file is created on first start")
	require.NotNil(t, app.allowList)
	assert.Equal(t, 1, app.allowList.Len())
	assert.True(t, app.allowList.Contains(first))

	second := writePeerKey(t, c.MirrorsWhoCallUsDir, "peer2", "10.0.0.2")
	app.reloadAllowList(context.Background())
	assert.Equal(t, 2, app.allowList.Len())
	assert.True(t, app.allowList.Contains(second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.False(t, app.security.HasKeyPair())
}

func TestNewApp_MirroringDisabled(t *testing.T) {
	c := testConfig(t)

	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.allowList)
	app.reloadAllowList(context.Background())
}

func TestNewApp_ReusesKeyPair(t *testing.T) {
	c := testConfig(t)

	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)
	key := app.security.PublicKeyString()
	require.NoError(t, app.Close())

	again, err := NewApp(context.Background(), c)
	require.NoError(t, err)
	defer again.Close()
	assert.Equal(t, key, again.security.PublicKeyString())
}

func TestNewApp_WrongPassphrase(t *testing.T) {
	c := testConfig(t)

	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)
	require.NoError(t, app.Close())

	c.KeyPairPassphrase = "something else"
	_, err = NewApp(context.Background(), c)
	assert.ErrorIs(t, err, common.ErrAuthorizationFailed)
}

func TestNewApp_UnknownBackend(t *testing.T) {
	c := testConfig(t)
	c.StorageBackend = "floppy"

	_, err := NewApp(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage backend")
}
