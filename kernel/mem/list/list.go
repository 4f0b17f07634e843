// Package list implements the intrusive linked-list primitives used
// throughout the physical memory allocator: a doubly-linked list with an
// explicit head/tail, a circular doubly-linked ring, and a singly-linked
// LIFO stack.
//
// All three types operate on caller-embedded *Elem (or *StackElem) fields
// rather than allocating separate nodes. A type that wants to participate
// in a List or Ring embeds an Elem field; once an operation returns an
// *Elem, the caller recovers its containing struct with pointer arithmetic
// against the known field offset (see blockFromLink, zoneFromRingLink and
// slabFromRingLink in the buddy, zone and slab packages). This mirrors how the descriptor table and slab
// headers are laid out: the links live inside stable-address storage that
// the owning subsystem allocates once, never inside a per-node heap
// allocation.
//
// A node may be a member of at most one list at a time. Removing a node
// that is not currently linked into the given list is undefined and will
// corrupt both lists.
package list

// Elem is an intrusive link for List and Ring.
type Elem struct {
	next, prev *Elem
}

// Linked reports whether e has a neighbour link set. Every member of a Ring
// does; the only member of a List has none, so Linked reports false for it.
func (e *Elem) Linked() bool {
	return e.next != nil || e.prev != nil
}

// List is a doubly-linked list with an explicit head, tail and an exact
// running count of its members.
type List struct {
	head, tail *Elem
	count      int
}

// Count returns the number of elements currently linked into l.
func (l *List) Count() int { return l.count }

// Head returns the first element of l, or nil if l is empty.
func (l *List) Head() *Elem { return l.head }

// Tail returns the last element of l, or nil if l is empty.
func (l *List) Tail() *Elem { return l.tail }

// Next returns the element following e in the list it belongs to, or nil
// if e is the tail.
func Next(e *Elem) *Elem { return e.next }

// Prev returns the element preceding e in the list it belongs to, or nil
// if e is the head.
func Prev(e *Elem) *Elem { return e.prev }

// AddTail appends e to the end of l. e must be isolated.
func (l *List) AddTail(e *Elem) {
	if l.tail != nil {
		l.tail.next = e
		e.prev = l.tail
	} else {
		l.head = e
		e.prev = nil
	}

	e.next = nil
	l.tail = e
	l.count++
}

// PushHead inserts e as the new head of l. e must be isolated.
func (l *List) PushHead(e *Elem) {
	if l.head != nil {
		e.next = l.head
		l.head.prev = e
	} else {
		e.next = nil
		l.tail = e
	}

	e.prev = nil
	l.head = e
	l.count++
}

// PullTail removes and returns the last element of l, or nil if l is empty.
func (l *List) PullTail() *Elem {
	e := l.tail
	if e == nil {
		return nil
	}

	l.Remove(e)
	return e
}

// InsertAfter links e immediately after mark, which must already be a
// member of l. e must be isolated.
func (l *List) InsertAfter(mark, e *Elem) {
	e.prev = mark
	e.next = mark.next

	if mark.next != nil {
		mark.next.prev = e
	} else {
		l.tail = e
	}
	mark.next = e

	l.count++
}

// InsertBefore links e immediately before mark, which must already be a
// member of l. e must be isolated.
func (l *List) InsertBefore(mark, e *Elem) {
	e.next = mark
	e.prev = mark.prev

	if mark.prev != nil {
		mark.prev.next = e
	} else {
		l.head = e
	}
	mark.prev = e

	l.count++
}

// Remove unlinks e from l. Removing an element that is not a member of l
// is undefined.
func (l *List) Remove(e *Elem) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}

	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}

	e.next, e.prev = nil, nil
	l.count--
}

// Ring is a circular doubly-linked list. main points at an arbitrary
// member that serves as the traversal anchor; it is nil only when the ring
// is empty.
type Ring struct {
	main  *Elem
	count int
}

// Count returns the number of elements currently linked into r.
func (r *Ring) Count() int { return r.count }

// Main returns the ring's anchor element, or nil if r is empty.
func (r *Ring) Main() *Elem { return r.main }

// RingNext returns the element following e around its ring.
func RingNext(e *Elem) *Elem { return e.next }

// RingPrev returns the element preceding e around its ring.
func RingPrev(e *Elem) *Elem { return e.prev }

// Insert links e into r immediately before the anchor, i.e. as the new
// "last" element of the ring. e must be isolated.
func (r *Ring) Insert(e *Elem) {
	if r.main == nil {
		e.next, e.prev = e, e
		r.main = e
	} else {
		last := r.main.prev
		e.next = r.main
		e.prev = last
		last.next = e
		r.main.prev = e
	}

	r.count++
}

// Remove unlinks e from r. If e is the ring's anchor, the anchor moves to
// the next element (or becomes nil if e was the only member). Removing an
// element that is not a member of r is undefined.
func (r *Ring) Remove(e *Elem) {
	if e.next == e {
		r.main = nil
	} else {
		e.prev.next = e.next
		e.next.prev = e.prev

		if r.main == e {
			r.main = e.next
		}
	}

	e.next, e.prev = nil, nil
	r.count--
}

// StackElem is an intrusive singly-linked LIFO link.
type StackElem struct {
	next *StackElem
}

// Stack is an intrusive singly-linked LIFO stack.
type Stack struct {
	head  *StackElem
	count int
}

// Count returns the number of elements currently pushed onto s.
func (s *Stack) Count() int { return s.count }

// Push pushes e onto the top of s. e must be isolated.
func (s *Stack) Push(e *StackElem) {
	e.next = s.head
	s.head = e
	s.count++
}

// Pop removes and returns the top element of s, or nil if s is empty.
func (s *Stack) Pop() *StackElem {
	e := s.head
	if e == nil {
		return nil
	}

	s.head = e.next
	e.next = nil
	s.count--
	return e
}
