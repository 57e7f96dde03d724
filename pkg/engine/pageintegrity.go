package engine

import (
	"fmt"

	"github.com/rihuaaaaa/laura-db/pkg/buffer"
	"github.com/rihuaaaaa/laura-db/pkg/encryption"
)

// newPassphraseDiskManager derives a per-database AES-256 key from a
// passphrase via PBKDF2 and returns an encryption.EncryptedDiskManager
// rooted at path, the same key-derivation pkg/encryption/encryption.go
// uses for whole documents, applied here at the disk-manager boundary
// instead. The derived salt lives inside the returned manager only — a
// database opened with a passphrase must be reopened with the same one
// every time, or its first page read will fail to authenticate.
func newPassphraseDiskManager(path, passphrase string) (buffer.DiskManager, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("pageintegrity: encryption enabled but no passphrase configured")
	}

	encConfig, err := encryption.NewConfigFromPassword(passphrase, encryption.AlgorithmAES256GCM)
	if err != nil {
		return nil, fmt.Errorf("pageintegrity: derive key: %w", err)
	}

	edm, err := encryption.NewEncryptedDiskManager(path, encConfig)
	if err != nil {
		return nil, fmt.Errorf("pageintegrity: create encrypted disk manager: %w", err)
	}
	return edm, nil
}
