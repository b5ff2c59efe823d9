package product

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// fallbackSeq disambiguates fallback keys minted within the same clock tick.
var fallbackSeq atomic.Uint64

// asinRe matches marketplace item identifiers: exactly 10 alphanumerics.
var asinRe = regexp.MustCompile(`^[A-Z0-9]{10}$`)

// ResolveKey derives the stable identity key for a draft. Precedence:
//
//	1. marketplace id  → "A-" + id (uppercased)
//	2. product URL     → "U-" + sha1(lowercased url)[:10]
//	3. neither         → "R-" + sha1(now)[:10]
//
// The first two tiers are deterministic: the same normalized input always
// yields the same key, across process restarts. The "R-" tier is an explicit
// escape hatch for unidentifiable drafts and never deduplicates.
func ResolveKey(d Draft) string {
	asin := strings.ToUpper(strings.TrimSpace(d.ASIN))
	if asinRe.MatchString(asin) {
		return "A-" + asin
	}
	if url := strings.ToLower(strings.TrimSpace(d.URL)); url != "" {
		return "U-" + sha1Hex(url)[:10]
	}
	seed := strconv.FormatInt(time.Now().UnixNano(), 10) + "-" + strconv.FormatUint(fallbackSeq.Add(1), 10)
	return "R-" + sha1Hex(seed)[:10]
}

func sha1Hex(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}
