// Package ids derives the stable opaque identifiers ringer uses for crawls
// and crawl records.
package ids

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/google/uuid"
)

// CrawlID derives a crawl's identifier from its name. Two specs with the
// same name always map to the same ID.
func CrawlID(name string) string {
	return hashHex(name)
}

// RecordID derives a crawl record's identifier from its URL. Record identity
// is URL identity.
func RecordID(url string) string {
	return hashHex(url)
}

func hashHex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// NewResultsID generates a fresh, opaque collection/data ID pair for a crawl
// that did not supply one explicitly.
func NewResultsID() (collectionID, dataID string) {
	return "collection_" + uuid.NewString(), "data_" + uuid.NewString()
}
