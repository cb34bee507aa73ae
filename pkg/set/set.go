package set

import (
	"iter"
	"slices"
)

// Set is an insertion ordered collection of unique items. The zero value is
// an empty set ready to use.
type Set[T comparable] struct {
	index map[T]int
	items []T
}

func New[T comparable](items ...T) *Set[T] {
	s := &Set[T]{}
	s.Add(items...)
	return s
}

// Add appends items that are not already present
func (s *Set[T]) Add(items ...T) {
	if s.index == nil {
		s.index = make(map[T]int, len(items))
	}
	for _, item := range items {
		if _, exists := s.index[item]; exists {
			continue
		}
		s.index[item] = len(s.items)
		s.items = append(s.items, item)
	}
}

// Remove removes an item from the set, keeping the order of the rest
func (s *Set[T]) Remove(item T) {
	if s == nil {
		return
	}
	position, exists := s.index[item]
	if !exists {
		return
	}
	s.items = slices.Delete(s.items, position, position+1)
	delete(s.index, item)
	for i := position; i < len(s.items); i++ {
		s.index[s.items[i]] = i
	}
}

// Contains checks if an item exists in the set
func (s *Set[T]) Contains(item T) bool {
	if s == nil {
		return false
	}
	_, exists := s.index[item]
	return exists
}

func (s *Set[T]) ContainsAll(items ...T) bool {
	for _, item := range items {
		if !s.Contains(item) {
			return false
		}
	}
	return true
}

// Size returns the number of items in the set
func (s *Set[T]) Size() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Items returns all items in insertion order as a sequence
func (s *Set[T]) Items() iter.Seq[T] {
	return func(yield func(T) bool) {
		if s == nil {
			return
		}
		for _, item := range s.items {
			if !yield(item) {
				return
			}
		}
	}
}

// Slice returns a copy of the items in insertion order
func (s *Set[T]) Slice() []T {
	if s == nil || len(s.items) == 0 {
		return []T{}
	}
	return slices.Clone(s.items)
}

func (s *Set[T]) Clone() *Set[T] {
	clone := &Set[T]{}
	if s != nil {
		clone.Add(s.items...)
	}
	return clone
}

// SubsetOf reports whether every item of s is also in other.
func (s *Set[T]) SubsetOf(other *Set[T]) bool {
	if s.Size() > other.Size() {
		return false
	}
	for item := range s.Items() {
		if !other.Contains(item) {
			return false
		}
	}
	return true
}

// Equal reports whether both sets hold the same items, ignoring order.
func (s *Set[T]) Equal(other *Set[T]) bool {
	return s.Size() == other.Size() && s.SubsetOf(other)
}
