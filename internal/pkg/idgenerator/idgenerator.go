// nolint: gochecknoglobals
package idgenerator

import (
	"strings"

	"github.com/gofrs/uuid/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	EtcdNamespaceForTestLength = 10
	ProcessIDLength            = 12
)

// alphabet used in ID generation.
var alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func EtcdNamespaceForTest() string {
	return gonanoid.MustGenerate(alphabet, EtcdNamespaceForTestLength)
}

func ProcessID() string {
	return gonanoid.MustGenerate(alphabet, ProcessIDLength)
}

// WorkerUUID returns a random UUID v4 as 32 uppercase hex characters without dashes.
func WorkerUUID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.Must(uuid.NewV4()).String(), "-", ""))
}
