package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hussein-Mazeh/vaultkeeper/krypto"
)

func TestDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := load(viper.New(), "", dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "vault.json"), cfg.Vault.Path)
	assert.Equal(t, 5*time.Minute, cfg.Session.AutoLock)
	assert.Equal(t, 30*time.Second, cfg.Clipboard.Timeout)
	assert.Equal(t, krypto.DefaultKDFParams(), cfg.KDFParams())
	assert.Equal(t, 8, cfg.PassphrasePolicy().MinLength)
	assert.False(t, cfg.PassphrasePolicy().CheckBreached)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, filepath.Join(dir, "audit.db"), cfg.AuditPath())
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
vault:
  path: /tmp/other/vault.json
session:
  auto_lock: 90s
kdf:
  name: argon2id
  argon2:
    time: 2
    memory_kib: 32768
    threads: 2
policy:
  min_score: 2
`), 0o600))

	t.Setenv("VAULTKEEPER_CLIPBOARD_TIMEOUT", "10s")
	t.Setenv("VAULTKEEPER_SESSION_AUTO_LOCK", "0s")

	cfg, err := load(viper.New(), file, dir)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other/vault.json", cfg.Vault.Path)
	assert.Equal(t, time.Duration(0), cfg.Session.AutoLock)
	assert.Equal(t, 10*time.Second, cfg.Clipboard.Timeout)
	assert.Equal(t, krypto.Argon2idKDFParams(krypto.Argon2Params{Time: 2, MemoryKiB: 32768, Threads: 2}), cfg.KDFParams())
	assert.Equal(t, 2, cfg.PassphrasePolicy().MinScore)
	assert.Equal(t, "/tmp/other/audit.db", cfg.AuditPath())
}

func TestConfigFileInDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"log":{"level":"debug"}}`), 0o600))
	cfg, err := load(viper.New(), "", dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestMissingExplicitFile(t *testing.T) {
	_, err := load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"), t.TempDir())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	base, err := load(viper.New(), "", dir)
	require.NoError(t, err)

	bad := base
	bad.Session.AutoLock = -time.Second
	assert.Error(t, bad.Validate())

	bad = base
	bad.KDF.Name = "md5"
	assert.Error(t, bad.Validate())

	bad = base
	bad.Policy.MinScore = 5
	assert.Error(t, bad.Validate())

	bad = base
	bad.KDF.Iterations = 0
	assert.Error(t, bad.Validate())

	bad = base
	bad.KDF.Iterations = 1
	assert.Error(t, bad.Validate())

	ok := base
	ok.KDF.Iterations = MinPBKDF2Iterations
	assert.NoError(t, ok.Validate())

	bad = base
	bad.KDF.Name = krypto.KDFArgon2id
	bad.KDF.Argon2.MemoryKiB = 1024
	assert.Error(t, bad.Validate())

	ok = base
	ok.KDF.Name = krypto.KDFArgon2id
	ok.KDF.Argon2.MemoryKiB = MinArgon2MemoryKiB
	assert.NoError(t, ok.Validate())
}
