// Package driveid provides a type-safe drive identifier for the open API.
// Drive ids are opaque decimal strings ("default_drive_id",
// "resource_drive_id", "backup_drive_id"); surrounding whitespace copied from
// config files or token responses is stripped so map keys, ledger rows and
// request bodies agree.
//
// This is a leaf package with zero external dependencies beyond stdlib.
package driveid

import (
	"database/sql"
	"database/sql/driver"
	"encoding"
	"fmt"
	"strings"
)

// ID is a normalized drive identifier. The zero value (ID{}) represents an
// absent or unknown drive.
type ID struct {
	value string
}

// New creates an ID from a raw identifier. Whitespace-only input returns the
// zero ID.
func New(raw string) ID {
	return ID{value: strings.TrimSpace(raw)}
}

// String returns the normalized drive ID string.
func (id ID) String() string {
	return id.value
}

// IsZero reports whether this is the zero-value ID.
func (id ID) IsZero() bool {
	return id.value == ""
}

// Equal reports whether two IDs are identical.
func (id ID) Equal(other ID) bool {
	return id.value == other.value
}

// MarshalText implements encoding.TextMarshaler. JSON request bodies carry
// drive ids as plain strings.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. The input is
// normalized just like New().
func (id *ID) UnmarshalText(text []byte) error {
	*id = New(string(text))
	return nil
}

// Scan implements sql.Scanner for reading drive IDs from the upload ledger.
// SQL NULL produces the zero ID. Integer columns are accepted because some
// tools write numeric ids without quoting.
func (id *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*id = ID{}
	case string:
		*id = New(v)
	case []byte:
		*id = New(string(v))
	case int64:
		*id = New(fmt.Sprintf("%d", v))
	default:
		return fmt.Errorf("driveid.ID.Scan: unsupported type %T", src)
	}

	return nil
}

// Value implements driver.Valuer. The zero ID writes SQL NULL to match the
// Scan behavior.
func (id ID) Value() (driver.Value, error) {
	if id.IsZero() {
		return nil, nil
	}

	return id.value, nil
}

// Compile-time interface assertions.
var (
	_ encoding.TextMarshaler   = ID{}
	_ encoding.TextUnmarshaler = (*ID)(nil)
	_ fmt.Stringer             = ID{}
	_ driver.Valuer            = ID{}
	_ sql.Scanner              = (*ID)(nil)
)
