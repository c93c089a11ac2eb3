// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package sets implement a set type as a `map[T]struct{}` but with better ergonomics, and an Ordered set
// that also remembers the order of insertion.
package sets

// Set implements a Set for the key type T.
type Set[T comparable] map[T]struct{}

// Make returns an empty Set of the given type. Size is optional, and if given
// will reserve the expected size.
func Make[T comparable](size ...int) Set[T] {
	if len(size) == 0 {
		return make(Set[T])
	}
	return make(Set[T], size[0])
}

// Has returns true if Set s has the given key.
func (s Set[T]) Has(key T) bool {
	_, found := s[key]
	return found
}

// Insert keys into set.
func (s Set[T]) Insert(keys ...T) {
	for _, key := range keys {
		s[key] = struct{}{}
	}
}

// Ordered is a set that keeps its elements in the order they were first inserted, and indexes them by
// that position.
//
// The zero value is not usable, create it with MakeOrdered.
type Ordered[T comparable] struct {
	positions map[T]int
	elements  []T
}

// MakeOrdered creates an Ordered set with the given elements inserted, in order.
func MakeOrdered[T comparable](elements ...T) *Ordered[T] {
	o := &Ordered[T]{positions: make(map[T]int, len(elements))}
	o.Insert(elements...)
	return o
}

// Insert appends the keys not yet in the set.
func (o *Ordered[T]) Insert(keys ...T) {
	for _, key := range keys {
		if _, found := o.positions[key]; found {
			continue
		}
		o.positions[key] = len(o.elements)
		o.elements = append(o.elements, key)
	}
}

// Has returns whether key is in the set.
func (o *Ordered[T]) Has(key T) bool {
	_, found := o.positions[key]
	return found
}

// Index returns the position of key in the order of insertion, or -1 if it is not in the set.
func (o *Ordered[T]) Index(key T) int {
	if pos, found := o.positions[key]; found {
		return pos
	}
	return -1
}

// Len returns the number of elements in the set.
func (o *Ordered[T]) Len() int { return len(o.elements) }

// Elements returns the elements in the order of insertion. It must not be modified.
func (o *Ordered[T]) Elements() []T { return o.elements }
