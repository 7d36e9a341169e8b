// Package pointid derives deterministic vector point ids from a chunk's identity.
package pointid

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// namespace scopes the generated UUIDv5 values to shiryo chunk points.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/hyperjump/shiryo/points"))

// For returns the point id for (owner, filename, sequenceID). The same triple always yields
// the same id, so re-ingesting a chunk overwrites its point instead of duplicating it.
func For(owner, filename string, sequenceID int) string {
	name := strings.Join([]string{owner, filename, strconv.Itoa(sequenceID)}, "\x00")
	return uuid.NewSHA1(namespace, []byte(name)).String()
}
