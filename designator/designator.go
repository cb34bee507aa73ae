// Package designator parses and compares event designators.
//
// A designator is a dotted string naming a channel followed by an unordered
// set of tags:
//
//	channel-name.tag1.tag2.tagX
//
// The first segment is the channel name, every other segment is a tag. Tags
// are unique and their order carries no meaning, so "order.created.urgent"
// and "order.urgent.created.urgent" designate the same thing.
package designator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stateforward/go-iventy/pkg/set"
)

// Separator splits the channel name from the tags and the tags from each other.
const Separator = "."

var (
	// ErrEmptyName is returned when a designator has no channel name.
	ErrEmptyName = errors.New("designator: empty channel name")

	// ErrEmptyTag is returned when a designator contains an empty tag segment.
	ErrEmptyTag = errors.New("designator: empty tag")
)

// Designator is an immutable (name, tags) pair. Extend and Reduce return new
// values and never touch the receiver.
type Designator struct {
	name string
	tags *set.Set[string]
}

// Parse splits s on the separator. The channel name must not be empty and
// neither may any of the tags.
func Parse(s string) (Designator, error) {
	name, rest, tagged := strings.Cut(s, Separator)
	if name == "" {
		return Designator{}, fmt.Errorf("%w: %q", ErrEmptyName, s)
	}
	tags := set.New[string]()
	if tagged {
		for _, tag := range strings.Split(rest, Separator) {
			if tag == "" {
				return Designator{}, fmt.Errorf("%w: %q", ErrEmptyTag, s)
			}
			tags.Add(tag)
		}
	}
	return Designator{name: name, tags: tags}, nil
}

// MustParse is like Parse but panics on malformed input. It is meant for
// package level designators built from constants.
func MustParse(s string) Designator {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// New builds a designator from a bare name and tags. Tags are normalized the
// same way Extend normalizes them.
func New(name string, tags ...string) Designator {
	return Designator{name: name}.Extend(tags...)
}

func (d Designator) Name() string {
	return d.name
}

// Tags returns a copy of the tags in the order they were first seen.
func (d Designator) Tags() []string {
	return d.tags.Slice()
}

func (d Designator) Len() int {
	return d.tags.Size()
}

func (d Designator) Has(tag string) bool {
	return d.tags.Contains(tag)
}

// Extend returns a designator carrying the union of the current tags and the
// given ones. Empty tags are skipped and a tag containing the separator adds
// each of its segments.
func (d Designator) Extend(tags ...string) Designator {
	extended := d.tags.Clone()
	for _, tag := range tags {
		for _, segment := range strings.Split(tag, Separator) {
			if segment != "" {
				extended.Add(segment)
			}
		}
	}
	return Designator{name: d.name, tags: extended}
}

// Reduce returns a designator without the given tag. Reducing by a tag that
// is not present returns an equal designator.
func (d Designator) Reduce(tag string) Designator {
	reduced := d.tags.Clone()
	reduced.Remove(tag)
	return Designator{name: d.name, tags: reduced}
}

// IsWithin reports whether the names match and every tag of d is also a tag
// of other. The other designator may carry more tags, never fewer.
func (d Designator) IsWithin(other Designator) bool {
	if d.name != other.name {
		return false
	}
	return d.tags.SubsetOf(other.tags)
}

// Equals reports whether the names match and both tag sets are identical.
func (d Designator) Equals(other Designator) bool {
	if d.name != other.name {
		return false
	}
	return d.tags.Equal(other.tags)
}

func (d Designator) String() string {
	if d.tags.Size() == 0 {
		return d.name
	}
	var builder strings.Builder
	builder.WriteString(d.name)
	for tag := range d.tags.Items() {
		builder.WriteString(Separator)
		builder.WriteString(tag)
	}
	return builder.String()
}
