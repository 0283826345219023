package admissions

import "hash/fnv"

// SurrogateID derives the numeric surrogate identity (p_id) for a record
// from its URL. The mapping is FNV-1a 64 masked to 63 bits so the value fits
// a signed BIGINT and is never negative. Two distinct URLs colliding is
// treated as a negligible-probability event; uniqueness is enforced on the
// URL column, not on p_id.
func SurrogateID(url string) int64 {
	h := fnv.New64a()
	// hash.Hash.Write never returns an error.
	_, _ = h.Write([]byte(url))
	return int64(h.Sum64() & (1<<63 - 1))
}
