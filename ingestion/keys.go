package ingestion

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	dataPrefix     = "data"
	metadataPrefix = "metadata"
	dataSuffix     = "data"
	metadataSuffix = "metadata.json"
)

// ObjectKeys are the store keys for one file's metadata and content. Both
// share a millisecond timestamp and a random id so they can be paired later.
type ObjectKeys struct {
	Metadata string
	Data     string
}

// KeyFunc returns fresh object keys for a file started at now.
type KeyFunc func(now time.Time) ObjectKeys

// NewObjectKeys builds metadata/{millis}_{id}.metadata.json and
// data/{millis}_{id}.data.
func NewObjectKeys(now time.Time, id uuid.UUID) ObjectKeys {
	stem := strconv.FormatInt(now.UnixMilli(), 10) + "_" + id.String()
	return ObjectKeys{
		Metadata: metadataPrefix + "/" + stem + "." + metadataSuffix,
		Data:     dataPrefix + "/" + stem + "." + dataSuffix,
	}
}

// RandomKeys is the default KeyFunc, using a random UUID.
func RandomKeys(now time.Time) ObjectKeys {
	return NewObjectKeys(now, uuid.New())
}
