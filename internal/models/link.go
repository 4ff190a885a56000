package models

import (
	"strings"
	"time"
)

// SecureScheme is the only scheme accepted for links and tracked images.
const SecureScheme = "https://"

// ShortLink represents a short identifier bound to an original image URL.
type ShortLink struct {
	// ID is the unique identifier for the short link record.
	ID int64
	// ShortID is the generated identifier used in short URLs.
	ShortID string
	// OriginalURL is the image URL the short identifier resolves to.
	OriginalURL string
	// CreatedAt is the timestamp indicating when the short link was created.
	CreatedAt time.Time
}

// IsSecureURL reports whether u satisfies the secure-transport precondition.
func IsSecureURL(u string) bool {
	return strings.HasPrefix(u, SecureScheme)
}
