package exec

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/spaolacci/murmur3"

	"planforge/sql"
)

// encodeKey writes a canonical form of v: values that compare equal encode
// the same, so the hash of the encoding can bucket rows.
func encodeKey(buf *bytes.Buffer, v sql.Value) {
	switch x := v.V.(type) {
	case nil:
		buf.WriteString("n|")
	case bool:
		if x {
			buf.WriteString("bT|")
		} else {
			buf.WriteString("bF|")
		}
	case int64:
		buf.WriteString("f" + strconv.FormatFloat(float64(x), 'g', -1, 64) + "|")
	case float64:
		buf.WriteString("f" + strconv.FormatFloat(x, 'g', -1, 64) + "|")
	case string:
		s := strings.TrimRight(x, " ")
		buf.WriteString("s" + strconv.Itoa(len(s)) + ":" + s + "|")
	case []byte:
		buf.WriteString("x" + strconv.Itoa(len(x)) + ":")
		buf.Write(x)
		buf.WriteByte('|')
	case time.Time:
		buf.WriteString("t" + strconv.FormatInt(x.UnixNano(), 10) + "|")
	default:
		buf.WriteString("?|")
	}
}

func hashKey(vals sql.Row) uint64 {
	var buf bytes.Buffer
	for _, v := range vals {
		encodeKey(&buf, v)
	}
	return murmur3.Sum64(buf.Bytes())
}

func equalRows(a, b sql.Row) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// rowSet buckets rows by key hash; equality is checked on the values.
type rowSet[T any] struct {
	buckets map[uint64][]keyed[T]
}

type keyed[T any] struct {
	key  sql.Row
	item T
}

func newRowSet[T any]() *rowSet[T] {
	return &rowSet[T]{buckets: map[uint64][]keyed[T]{}}
}

func (s *rowSet[T]) get(key sql.Row) (T, bool) {
	for _, k := range s.buckets[hashKey(key)] {
		if equalRows(k.key, key) {
			return k.item, true
		}
	}
	var zero T
	return zero, false
}

// upsert replaces the item under key with fn of the current one, which is
// the zero value for a new key. It reports whether the key was new.
func (s *rowSet[T]) upsert(key sql.Row, fn func(T) T) bool {
	h := hashKey(key)
	bucket := s.buckets[h]
	for i := range bucket {
		if equalRows(bucket[i].key, key) {
			bucket[i].item = fn(bucket[i].item)
			return false
		}
	}
	var zero T
	s.buckets[h] = append(bucket, keyed[T]{key: key, item: fn(zero)})
	return true
}

func hasNull(r sql.Row) bool {
	for _, v := range r {
		if v.IsNull() {
			return true
		}
	}
	return false
}
