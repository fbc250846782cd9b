package store

import "strings"

// isUniqueConstraint reports whether err came from a sqlite UNIQUE
// constraint violation, the case the queue backend maps to
// queue.ErrDuplicateMessageID.
func isUniqueConstraint(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint")
}
