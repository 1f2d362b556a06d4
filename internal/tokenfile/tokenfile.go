// Package tokenfile reads and writes the credential file used by the
// transfer engine: an OAuth2 token plus the drive id that the sign-in layer
// resolved for the account. Sign-in itself lives outside this module; this
// package only gives the engine a durable place to pick the token up from and
// to write refreshed tokens back to.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/adrive-go/internal/driveid"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token directory.
const DirPerms = 0o700

// ErrMissingToken is returned when a file parses but carries no token.
var ErrMissingToken = errors.New("tokenfile: missing token field")

// File is the on-disk format.
type File struct {
	Token   *oauth2.Token `json:"token"`
	DriveID driveid.ID    `json:"default_drive_id,omitzero"`
}

// Load reads a token file. Returns (nil, nil) if the file does not exist.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if tf.Token == nil {
		return nil, fmt.Errorf("%w in %s", ErrMissingToken, path)
	}

	return &tf, nil
}

// Save writes a token file atomically (temp file in the same directory, then
// rename) with owner-only permissions. Token values are never logged.
func Save(path string, tf *File) error {
	if tf == nil || tf.Token == nil {
		return ErrMissingToken
	}

	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	// Flush before rename so a crash cannot leave an empty token at path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// UpdateToken replaces the token in an existing file, keeping the stored
// drive id. A missing file is created with only the token.
func UpdateToken(path string, tok *oauth2.Token) error {
	tf, err := Load(path)
	if err != nil && !errors.Is(err, ErrMissingToken) {
		return err
	}

	if tf == nil {
		tf = &File{}
	}

	tf.Token = tok

	return Save(path, tf)
}
