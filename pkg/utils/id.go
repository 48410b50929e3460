package utils

import "github.com/google/uuid"

// GenerateID returns a prefixed random identifier, e.g. "bid_6f1c...".
func GenerateID(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "_" + uuid.NewString()
}
