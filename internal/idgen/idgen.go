// Package idgen produces URL-safe random identifiers for short links and stored objects.
package idgen

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// FileIDLength is the identifier length used for stored object keys.
	FileIDLength = 21
	// ShortIDLength is the identifier length used for short links.
	ShortIDLength = 7
)

// New returns a random identifier of the given length drawn from the nanoid alphabet (A-Za-z0-9_-).
func New(length int) (string, error) {
	const op = "idgen.New"

	id, err := gonanoid.New(length)
	if err != nil {
		return "", fmt.Errorf("%s: failed to generate id: %w", op, err)
	}

	return id, nil
}
