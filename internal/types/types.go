// README: Shared identifiers and coordinates.
package types

import (
	"encoding/hex"

	"github.com/google/uuid"
)

type ID string

// NewID returns a 32-char lowercase hex identifier.
func NewID() ID {
	u := uuid.New()
	return ID(hex.EncodeToString(u[:]))
}

func (id ID) String() string { return string(id) }

type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
