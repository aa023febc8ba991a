// Package config loads vaultkeeper settings from defaults, an optional config
// file and VAULTKEEPER_* environment variables, in increasing precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/Hussein-Mazeh/vaultkeeper/auth"
	"github.com/Hussein-Mazeh/vaultkeeper/internal/clipguard"
	"github.com/Hussein-Mazeh/vaultkeeper/krypto"
)

const (
	appDir    = "vaultkeeper"
	envPrefix = "VAULTKEEPER"

	DefaultAutoLock = 5 * time.Minute

	// Cost floors for new vaults. Lower values are only reachable through
	// service options, never through configuration.
	MinPBKDF2Iterations = 100_000
	MinArgon2MemoryKiB  = 19 * 1024
)

type Config struct {
	Vault     VaultConfig     `mapstructure:"vault"`
	Session   SessionConfig   `mapstructure:"session"`
	Clipboard ClipboardConfig `mapstructure:"clipboard"`
	KDF       KDFConfig       `mapstructure:"kdf"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Log       LogConfig       `mapstructure:"log"`
}

type VaultConfig struct {
	Path string `mapstructure:"path"`
}

type SessionConfig struct {
	// AutoLock is the inactivity timeout. Zero disables auto-lock.
	AutoLock time.Duration `mapstructure:"auto_lock"`
}

type ClipboardConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type Argon2Config struct {
	Time      uint32 `mapstructure:"time"`
	MemoryKiB uint32 `mapstructure:"memory_kib"`
	Threads   uint8  `mapstructure:"threads"`
}

// KDFConfig selects the derivation function for newly created vaults.
// Existing vaults always use the parameters stored in their file.
type KDFConfig struct {
	Name       string       `mapstructure:"name"`
	Iterations int          `mapstructure:"iterations"`
	Argon2     Argon2Config `mapstructure:"argon2"`
}

type PolicyConfig struct {
	MinLength     int  `mapstructure:"min_length"`
	MinScore      int  `mapstructure:"min_score"`
	CheckBreached bool `mapstructure:"check_breached"`
}

type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Dir returns the per-user configuration directory ($XDG_CONFIG_HOME/vaultkeeper or ~/.config/vaultkeeper on Linux).
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "locate user config directory")
	}
	return filepath.Join(base, appDir), nil
}

func setDefaults(v *viper.Viper, dir string) {
	a := krypto.DefaultArgon2Params()
	v.SetDefault("vault.path", filepath.Join(dir, "vault.json"))
	v.SetDefault("session.auto_lock", DefaultAutoLock)
	v.SetDefault("clipboard.timeout", clipguard.DefaultTimeout)
	v.SetDefault("kdf.name", krypto.KDFPBKDF2)
	v.SetDefault("kdf.iterations", krypto.DefaultPBKDF2Iterations)
	v.SetDefault("kdf.argon2.time", a.Time)
	v.SetDefault("kdf.argon2.memory_kib", a.MemoryKiB)
	v.SetDefault("kdf.argon2.threads", a.Threads)
	v.SetDefault("policy.min_length", auth.DefaultPolicy().MinLength)
	v.SetDefault("policy.min_score", 0)
	v.SetDefault("policy.check_breached", false)
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.path", "")
	v.SetDefault("log.level", "info")
}

// Load reads configuration. file may be empty, in which case config.{yaml,json,toml}
// in Dir is used when present.
func Load(file string) (Config, error) {
	dir, err := Dir()
	if err != nil {
		return Config{}, err
	}
	return load(viper.New(), file, dir)
}

func load(v *viper.Viper, file, dir string) (Config, error) {
	setDefaults(v, dir)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", file)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, errors.Wrap(err, "read config")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	cfg.Vault.Path = expandHome(cfg.Vault.Path)
	cfg.Audit.Path = expandHome(cfg.Audit.Path)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// Validate rejects settings that cannot work.
func (c Config) Validate() error {
	if c.Vault.Path == "" {
		return errors.New("vault.path must not be empty")
	}
	if c.Session.AutoLock < 0 {
		return errors.New("session.auto_lock must not be negative")
	}
	if c.Clipboard.Timeout < 0 {
		return errors.New("clipboard.timeout must not be negative")
	}
	if err := c.KDFParams().Validate(); err != nil {
		return errors.Wrap(err, "kdf")
	}
	switch c.KDF.Name {
	case krypto.KDFPBKDF2:
		if c.KDF.Iterations < MinPBKDF2Iterations {
			return errors.Newf("kdf.iterations must be at least %d, got %d", MinPBKDF2Iterations, c.KDF.Iterations)
		}
	case krypto.KDFArgon2id:
		if c.KDF.Argon2.MemoryKiB < MinArgon2MemoryKiB {
			return errors.Newf("kdf.argon2.memory_kib must be at least %d, got %d", MinArgon2MemoryKiB, c.KDF.Argon2.MemoryKiB)
		}
	}
	if c.Policy.MinScore < 0 || c.Policy.MinScore > 4 {
		return errors.Newf("policy.min_score must be between 0 and 4, got %d", c.Policy.MinScore)
	}
	if c.Policy.MinLength < 1 {
		return errors.New("policy.min_length must be at least 1")
	}
	return nil
}

// KDFParams returns the derivation parameters for new vaults.
func (c Config) KDFParams() krypto.KDFParams {
	if c.KDF.Name == krypto.KDFArgon2id {
		return krypto.Argon2idKDFParams(krypto.Argon2Params{
			Time:      c.KDF.Argon2.Time,
			MemoryKiB: c.KDF.Argon2.MemoryKiB,
			Threads:   c.KDF.Argon2.Threads,
		})
	}
	return krypto.KDFParams{Name: c.KDF.Name, Iterations: c.KDF.Iterations}
}

// PassphrasePolicy returns the configured master passphrase policy.
func (c Config) PassphrasePolicy() auth.Policy {
	p := auth.DefaultPolicy()
	p.MinLength = c.Policy.MinLength
	p.MinScore = c.Policy.MinScore
	p.CheckBreached = c.Policy.CheckBreached
	return p
}

// AuditPath returns where the audit database lives, next to the vault by default.
func (c Config) AuditPath() string {
	if c.Audit.Path != "" {
		return c.Audit.Path
	}
	return filepath.Join(filepath.Dir(c.Vault.Path), "audit.db")
}
