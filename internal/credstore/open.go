package credstore

import (
	"fmt"
	"os"

	"github.com/felixgeelhaar/qrlink/internal/config"
	"github.com/felixgeelhaar/qrlink/internal/log"
)

// Open builds the Store selected by cfg. The returned close function releases
// backend connections and is never nil.
func Open(cfg config.StoreConfig, logger *log.Logger, opts ...Option) (*Store, func() error, error) {
	noop := func() error { return nil }
	opts = append([]Option{WithLogger(logger)}, opts...)

	switch cfg.Backend {
	case config.BackendMemory:
		return New(NewMemoryBackend(), opts...), noop, nil

	case config.BackendFile, "":
		var fileOpts []FileOption
		if cfg.PassphraseEnv != "" {
			if pass := os.Getenv(cfg.PassphraseEnv); pass != "" {
				fileOpts = append(fileOpts, WithPassphrase(pass))
			}
		}
		return New(NewFileBackend(cfg.Path, fileOpts...), opts...), noop, nil

	case config.BackendRedis:
		backend, err := DialRedis(cfg.RedisURL, cfg.Namespace)
		if err != nil {
			return nil, noop, err
		}
		return New(backend, opts...), backend.Close, nil

	case config.BackendVault:
		backend, err := NewVaultBackend(VaultConfig{
			Address:    cfg.VaultAddress,
			Token:      cfg.VaultToken,
			MountPath:  cfg.VaultMount,
			SecretPath: cfg.VaultPath,
		})
		if err != nil {
			return nil, noop, err
		}
		return New(backend, opts...), noop, nil
	}

	return nil, noop, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
