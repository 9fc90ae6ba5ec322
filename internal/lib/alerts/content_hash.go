package alerts

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
)

var punctuation = regexp.MustCompile(`[.,;:!?()-]`)

// ContentHasher produces stable keys for alerts that describe the same hazard
type ContentHasher struct{}

// NewContentHasher creates a new content hasher
func NewContentHasher() *ContentHasher {
	return &ContentHasher{}
}

// HashEvent hashes the normalized type, location text and coordinates
// rounded to roughly 100 m, so repeated reports of one hazard share a key
func (h *ContentHasher) HashEvent(event AlertEvent) string {
	signature := fmt.Sprintf("%s|%s|%.3f|%.3f",
		h.normalizeText(event.Type),
		h.normalizeText(event.Location),
		event.Latitude,
		event.Longitude,
	)

	hash := sha256.Sum256([]byte(signature))
	return fmt.Sprintf("%x", hash)
}

// normalizeText cleans text for consistent hashing
func (h *ContentHasher) normalizeText(text string) string {
	normalized := strings.ToLower(text)
	normalized = punctuation.ReplaceAllString(normalized, "")

	words := strings.Fields(normalized)
	for i, word := range words {
		if full, ok := abbreviations[word]; ok {
			words[i] = full
		}
	}

	return strings.Join(words, " ")
}

var abbreviations = map[string]string{
	"st":  "street",
	"rd":  "road",
	"ave": "avenue",
	"hwy": "highway",
}
