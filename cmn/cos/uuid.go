// Package cos provides common low-level types, errors and utilities shared
// across every flowrt package.
/*
 * Copyright (c) 2024, flowrt authors.
 */
package cos

import (
	"crypto/rand"
	"unsafe"

	"github.com/flowmesh/flowrt/cmn/atomic"
	"github.com/teris-io/shortid"
)

// Alphabet for generating Block/Flow/bridge ids, mirroring the teacher's
// shortid-based GenUUID (cmn/cos/uuid.go) - chosen so len(uuidABC) > 0x3f,
// which GenTie relies on for its 6-bit indexing.
const uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

const (
	LenShortID = 9  // per https://github.com/teris-io/shortid#id-length
	tooLongID  = 64 // Block uids and bridge names stay well under this
)

var (
	sid  *shortid.Shortid
	rtie atomic.Uint32
)

// InitShortID seeds the global id generator; call once at process start.
// Without a call, GenUUID falls back to a generator seeded with 1 so tests
// that skip initialization still get valid ids.
func InitShortID(seed uint64) {
	sid = shortid.MustNew(4 /*worker*/, uuidABC, seed)
}

func ensureSID() {
	if sid == nil {
		sid = shortid.MustNew(1, uuidABC, 1)
	}
}

// GenUUID generates a process-unique Block/Flow id: a shortid body with a
// one-character head tie-breaker when the body starts on anything but a
// letter, and a tail tie-breaker when it ends on a separator, so ids are
// always safe to use as map keys, JSON
// object keys, and wire-frame tokens without escaping.
func GenUUID() (uuid string) {
	ensureSID()
	var h, t string
	uuid = sid.MustGenerate()
	if !isAlpha(uuid[0]) {
		h = string(rune('A' + int(rtie.Inc())%26))
	}
	c := uuid[len(uuid)-1]
	if c == '-' || c == '_' {
		t = string(rune('a' + int(rtie.Inc())%26))
	}
	return h + uuid + t
}

func IsValidUUID(uuid string) bool {
	return len(uuid) >= LenShortID && IsAlphaNice(uuid)
}

// GenTie returns a 3-character tie-breaker drawn from uuidABC by a
// process-wide counter.
func GenTie() string {
	tie := rtie.Inc()
	b0 := uuidABC[tie&0x3f]
	b1 := uuidABC[(^tie)&0x3f]
	b2 := uuidABC[(tie>>2)&0x3f]
	return string([]byte{b0, b1, b2})
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// IsAlphaNice: letters and numbers w/ '-' and '_' permitted, never leading
// or trailing.
func IsAlphaNice(s string) bool {
	l := len(s)
	if l == 0 || l > tooLongID {
		return false
	}
	for i := 0; i < l; i++ {
		c := s[i]
		if isAlpha(c) || (c >= '0' && c <= '9') {
			continue
		}
		if c != '-' && c != '_' {
			return false
		}
		if i == 0 || i == l-1 {
			return false
		}
	}
	return true
}

// CryptoRandS returns an n-character cryptographically random alphanumeric
// string.
func CryptoRandS(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(b)
}

// UnsafeB / UnsafeS: zero-copy []byte<->string conversions for hot paths
// (xxhash digests over DType markup and bridge cache keys) where the
// source is known not to be mutated afterward.
func UnsafeB(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func UnsafeS(b []byte) string {
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// Plural returns "" for n==1 and "s" otherwise - trivial, but used often
// enough in error messages (Errs.Error, stats summaries) to deserve a name.
func Plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
