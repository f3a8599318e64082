package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// FingerprintSeparator joins the trigger and its sorted arguments before hashing.
const FingerprintSeparator = ":"

// Fingerprint computes the correlation key for a trigger and its arguments.
//
// Format: hex(SHA256(trigger + ":" + join(sort(args), ":")))
//
// Argument order does not matter, trigger identity does. The digest is plain
// SHA-256 with no salt or key: fingerprints are persisted on tasks and compared
// by equality against fingerprints computed from later events, possibly in
// another process. Strings are NFC normalized first so that canonically
// equivalent input produced by different providers hashes identically.
//
// Empty args is valid and hashes "trigger:".
func Fingerprint(trigger string, args []string) string {
	sorted := make([]string, len(args))
	for i, a := range args {
		sorted[i] = norm.NFC.String(a)
	}
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(norm.NFC.String(trigger)))
	h.Write([]byte(FingerprintSeparator))
	h.Write([]byte(strings.Join(sorted, FingerprintSeparator)))
	return hex.EncodeToString(h.Sum(nil))
}

// ParamValues returns the values of an event parameter map as the ordered
// argument list that feeds Fingerprint. Map order is irrelevant because
// Fingerprint sorts its arguments.
func ParamValues(params map[string]string) []string {
	values := make([]string, 0, len(params))
	for _, v := range params {
		values = append(values, v)
	}
	return values
}
