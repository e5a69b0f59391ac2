package store

import "strings"

// joinTags/splitTags encode a string slice as a single delimited column
// (catalyst tags, channel lists, reasons) — simple and portable across
// both SQL backends without a separate join table.
const tagSep = "\x1f"

func joinTags(tags []string) string {
	return strings.Join(tags, tagSep)
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, tagSep)
}
