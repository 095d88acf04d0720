package lsm

import "bytes"

// ValueKind tags an InternalKey as either a live value or a tombstone.
type ValueKind uint8

const (
	KindValue    ValueKind = 0
	KindDeletion ValueKind = 1
)

// InternalKey is (user_key, sequence_number, kind). Ordering is user_key
// ascending, then sequence_number descending, then kind ascending, so the
// first entry for a given user_key in a merged scan is the newest visible
// version.
type InternalKey struct {
	UserKey []byte
	Seq     uint64
	Kind    ValueKind
}

// CompareInternalKeys implements the total order from spec section 3.
func CompareInternalKeys(a, b InternalKey) int {
	if c := bytes.Compare(a.UserKey, b.UserKey); c != 0 {
		return c
	}
	if a.Seq != b.Seq {
		if a.Seq > b.Seq {
			return -1
		}
		return 1
	}
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	return 0
}

// Entry pairs an InternalKey with its value. A deletion entry carries an
// empty value by convention.
type Entry struct {
	Key   InternalKey
	Value []byte
}
