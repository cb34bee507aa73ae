// Package kinds classifies packets with packed kind identifiers.
//
// A kind is a uint64 holding its lineage: the kind's own 8-bit id in the low
// byte, then the ids of its bases, nearest first. Testing a packet against
// any ancestor is a scan of at most eight bytes.
package kinds

import (
	"fmt"
	"slices"
)

const (
	idBits   = 8
	maxDepth = 64 / idBits
	idMask   = 1<<idBits - 1
)

// Lineage returns the ids packed in kind, its own id first. The null kind
// has an empty lineage.
func Lineage(kind uint64) []uint64 {
	ids := make([]uint64, 0, maxDepth)
	for ; kind&idMask != 0; kind >>= idBits {
		ids = append(ids, kind&idMask)
	}
	return ids
}

// Kind derives a new kind from id and the lineages of bases. An ancestor
// shared by several bases is stored once. Ancestry deeper than eight levels
// is truncated.
func Kind(id uint64, bases ...uint64) uint64 {
	ids := []uint64{id & idMask}
	for _, base := range bases {
		for _, ancestor := range Lineage(base) {
			if !slices.Contains(ids, ancestor) {
				ids = append(ids, ancestor)
			}
		}
	}
	var kind uint64
	for level, ancestor := range ids[:min(len(ids), maxDepth)] {
		kind |= ancestor << (idBits * level)
	}
	return kind
}

// IsKind reports whether kind is, or derives from, any of the given bases.
// Only the null kind is null.
func IsKind(kind uint64, bases ...uint64) bool {
	lineage := Lineage(kind)
	for _, base := range bases {
		id := base & idMask
		if id == 0 {
			if kind == Null {
				return true
			}
			continue
		}
		if slices.Contains(lineage, id) {
			return true
		}
	}
	return false
}

var names = map[uint64]string{}

func define(name string, id uint64, bases ...uint64) uint64 {
	kind := Kind(id, bases...)
	names[kind] = name
	return kind
}

// Name returns the name of a kind declared by this package, or its hex form.
func Name(kind uint64) string {
	if name, ok := names[kind]; ok {
		return name
	}
	return fmt.Sprintf("%#x", kind)
}

var (
	Null = define("null", 0)
	// Packet is anything carried through the system with a payload.
	Packet = define("packet", 1)
	// Event is a packet routed by designator through emitters.
	Event = define("event", 2, Packet)
	// Remote is an event rebuilt from a message received by a port.
	Remote = define("remote", 3, Event)
)
