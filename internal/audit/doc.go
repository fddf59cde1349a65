// Package audit implements the append-only, hash-chained run log.
//
// Every record carries the chain value of its predecessor in "prev" and its
// own chain value in "chain", where
//
//	chain = HMAC-SHA256(key, prev + canonical(record without chain))
//
// or plain SHA-256 when no key is configured. Canonical form is compact JSON
// with sorted keys and numbers kept verbatim, so a record read back from disk
// re-serializes to exactly the bytes that were signed.
//
// Durability is best effort: each record is fsynced after it is written and a
// failed fsync is counted but never surfaced. The most recent record may be
// lost on crash, but no record is ever silently corrupted.
package audit
