package engine

import (
	"crypto/sha256"
	"unicode/utf8"
)

// minCaptureLength is the shortest string worth capturing. Single
// characters are clipboard noise (cut/paste of one letter).
const minCaptureLength = 2

// ShouldCapture reports whether content is worth capturing at all.
// A false return means "no-op", not an error. Length is measured in
// runes, so a single multi-byte character is still one character.
func ShouldCapture(content string) bool {
	return utf8.RuneCountInString(content) >= minCaptureLength
}

// dupeIndex maps content hashes to the ids of every record carrying
// that content, in registration order, for O(1) duplicate lookups.
// Exact equality semantics: two contents collide only if the strings
// are byte-identical (sha256 collisions are not a practical concern at
// clipboard volumes).
//
// The earliest registered record holds the claim: automatic re-captures
// bump it. When it is removed, the claim passes to the next record with
// the same content (manual creates are allowed to share content).
type dupeIndex struct {
	byHash map[[sha256.Size]byte][]string
}

func newDupeIndex() *dupeIndex {
	return &dupeIndex{byHash: make(map[[sha256.Size]byte][]string)}
}

// add registers content -> id. Re-adding the same id is a no-op.
func (d *dupeIndex) add(content, id string) {
	h := sha256.Sum256([]byte(content))
	for _, existing := range d.byHash[h] {
		if existing == id {
			return
		}
	}
	d.byHash[h] = append(d.byHash[h], id)
}

// lookup returns the id holding the claim for content, if any.
func (d *dupeIndex) lookup(content string) (string, bool) {
	ids := d.byHash[sha256.Sum256([]byte(content))]
	if len(ids) == 0 {
		return "", false
	}
	return ids[0], true
}

// remove drops id's registration for content. If id held the claim,
// the next record with the same content inherits it.
func (d *dupeIndex) remove(content, id string) {
	h := sha256.Sum256([]byte(content))
	ids := d.byHash[h]
	for i, existing := range ids {
		if existing == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(d.byHash, h)
		return
	}
	d.byHash[h] = ids
}

// rename re-points id's registration for content to newID, keeping its
// place in the claim order. Used when the backend assigns a canonical
// id to a local record.
func (d *dupeIndex) rename(content, oldID, newID string) {
	h := sha256.Sum256([]byte(content))
	for i, existing := range d.byHash[h] {
		if existing == oldID {
			d.byHash[h][i] = newID
			return
		}
	}
}
