package xid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// New returns a random identifier tagged with prefix, e.g. "sale-3f2a...".
func New(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return fmt.Sprintf("%s-%s", prefix, id)
}
