package badger

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// Object is one stored object with its integrity digest.
type Object struct {
	Key      string
	Size     int64
	Digest   []byte // blake2b-256 of Payload
	StoredAt time.Time
	Payload  []byte
}

// objectVersion prefixes every encoded Object.
const objectVersion uint64 = 1

// marshalObject encodes o as version, key, size, digest, stored-at
// microseconds, payload.
func marshalObject(o *Object) []byte {
	micros := o.StoredAt.UnixMicro()
	size := varint.Uint64.Size(objectVersion) +
		ord.String.Size(o.Key) +
		varint.Int64.Size(o.Size) +
		ord.ByteSlice.Size(o.Digest) +
		varint.Int64.Size(micros) +
		ord.ByteSlice.Size(o.Payload)

	buf := make([]byte, size)
	n := varint.Uint64.Marshal(objectVersion, buf)
	n += ord.String.Marshal(o.Key, buf[n:])
	n += varint.Int64.Marshal(o.Size, buf[n:])
	n += ord.ByteSlice.Marshal(o.Digest, buf[n:])
	n += varint.Int64.Marshal(micros, buf[n:])
	ord.ByteSlice.Marshal(o.Payload, buf[n:])
	return buf
}

// unmarshalObject decodes an Object written by marshalObject.
func unmarshalObject(data []byte) (*Object, error) {
	version, n, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode version: %w", err)
	}
	if version != objectVersion {
		return nil, fmt.Errorf("unsupported object version %d", version)
	}

	var (
		o      Object
		m      int
		micros int64
	)
	if o.Key, m, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	n += m
	if o.Size, m, err = varint.Int64.Unmarshal(data[n:]); err != nil {
		return nil, fmt.Errorf("decode size: %w", err)
	}
	n += m
	if o.Digest, m, err = ord.ByteSlice.Unmarshal(data[n:]); err != nil {
		return nil, fmt.Errorf("decode digest: %w", err)
	}
	n += m
	if micros, m, err = varint.Int64.Unmarshal(data[n:]); err != nil {
		return nil, fmt.Errorf("decode stored-at: %w", err)
	}
	n += m
	o.StoredAt = time.UnixMicro(micros).UTC()
	if o.Payload, _, err = ord.ByteSlice.Unmarshal(data[n:]); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &o, nil
}
