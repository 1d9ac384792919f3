package util

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a random identifier, optionally prefixed with an entity tag
// ("cpl", "sta", ...). The hex form keeps ids URL- and filename-safe.
func NewID(prefix string) string {
	id := uuid.New()
	encoded := hex.EncodeToString(id[:])
	if prefix == "" {
		return encoded
	}
	return prefix + "_" + encoded
}
