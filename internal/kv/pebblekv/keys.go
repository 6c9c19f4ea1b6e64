package pebblekv

import (
	"encoding/binary"
)

// Physical keyspace (byte-wise, lexicographically sortable):
// - s{key}                               plain value or counter
// - c{key}                               sorted-set cardinality (uint64 BE)
// - z{uvarint len}{key}{score_be8}{id_be8} score index
// - m{uvarint len}{key}{id_be8}           member -> score
//
// Scores are stored with the sign bit flipped so negative scores sort first.

const (
	tagString = 's'
	tagCard   = 'c'
	tagScore  = 'z'
	tagMember = 'm'
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func encodeScore(score int64) uint64 { return uint64(score) ^ (1 << 63) }
func decodeScore(v uint64) int64     { return int64(v ^ (1 << 63)) }

func keyString(key string) []byte {
	k := make([]byte, 0, len(key)+1)
	k = append(k, tagString)
	return append(k, key...)
}

func keyCard(key string) []byte {
	k := make([]byte, 0, len(key)+1)
	k = append(k, tagCard)
	return append(k, key...)
}

func zsetPrefix(tag byte, key string) []byte {
	k := make([]byte, 0, len(key)+binary.MaxVarintLen64+17)
	k = append(k, tag)
	k = binary.AppendUvarint(k, uint64(len(key)))
	return append(k, key...)
}

func keyScore(key string, score int64, member uint64) []byte {
	k := zsetPrefix(tagScore, key)
	k = appendBE8(k, encodeScore(score))
	return appendBE8(k, member)
}

func keyMember(key string, member uint64) []byte {
	return appendBE8(zsetPrefix(tagMember, key), member)
}

// scoreBounds returns [lower, upper) iterator bounds covering every entry of
// key with lo <= score <= hi.
func scoreBounds(key string, lo, hi int64) (lower, upper []byte) {
	p := zsetPrefix(tagScore, key)
	lower = appendBE8(append([]byte(nil), p...), encodeScore(lo))
	upper = appendBE8(append([]byte(nil), p...), encodeScore(hi))
	upper = appendBE8(upper, ^uint64(0))
	upper = append(upper, 0x00)
	return lower, upper
}

// decodeScoreKey extracts score and member from a score-index key.
func decodeScoreKey(k []byte) (int64, uint64) {
	n := len(k)
	return decodeScore(binary.BigEndian.Uint64(k[n-16 : n-8])), binary.BigEndian.Uint64(k[n-8:])
}

// prefixEnd returns the smallest key greater than every key with prefix p,
// or nil when no such key exists.
func prefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
