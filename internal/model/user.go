// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"unicode/utf8"
)

const (
	// MaxHandleLength bounds a registered handle, counted in runes after trimming.
	MaxHandleLength = 50

	// ActivityDepth is the number of recent activity entries kept per user.
	ActivityDepth = 3
)

// NormalizeHandle trims surrounding whitespace and lower-cases the handle.
// Handles are unique case-insensitively, so every write and every lookup
// goes through this function.
func NormalizeHandle(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// HandleLength reports the length of a handle in runes.
func HandleLength(handle string) int {
	return utf8.RuneCountInString(handle)
}

// Registration is the outcome of a successful register call.
type Registration struct {
	ChatUserID int64  `json:"chatUserId"`
	Handle     string `json:"handle"`
	Created    bool   `json:"created"` // false when an existing handle was overwritten
}
