package element

import (
	"fmt"

	"github.com/codeninja55/dicom-anon/dicom/tag"
	"github.com/codeninja55/dicom-anon/dicom/vr"
)

// Item represents one nested dataset within a DICOM sequence (VR SQ)
// element. A sequence attribute's value is an ordered list of Items,
// each carrying its own ordered set of elements (which may themselves
// contain nested sequences).
//
// DICOM Standard Reference:
// https://dicom.nema.org/medical/dicom/current/output/html/part05.html#sect_7.5
type Item struct {
	elements []*Element
}

// NewItem creates a sequence item from an ordered list of elements.
func NewItem(elements []*Element) *Item {
	return &Item{elements: append([]*Element(nil), elements...)}
}

// Elements returns the item's elements in insertion order.
func (it *Item) Elements() []*Element {
	return it.elements
}

// Get returns the element with the given tag, if present in this item.
func (it *Item) Get(t tag.Tag) (*Element, bool) {
	for _, e := range it.elements {
		if e.Tag().Equals(t) {
			return e, true
		}
	}
	return nil, false
}

// Set replaces or appends the element with the given tag.
func (it *Item) Set(e *Element) {
	for i, existing := range it.elements {
		if existing.Tag().Equals(e.Tag()) {
			it.elements[i] = e
			return
		}
	}
	it.elements = append(it.elements, e)
}

// Remove deletes the element with the given tag, if present.
func (it *Item) Remove(t tag.Tag) {
	for i, e := range it.elements {
		if e.Tag().Equals(t) {
			it.elements = append(it.elements[:i], it.elements[i+1:]...)
			return
		}
	}
}

// Replace overwrites the item's element list wholesale, e.g. after a
// recursive walk has rebuilt it from a tag-indexed working copy.
func (it *Item) Replace(elements []*Element) {
	it.elements = append([]*Element(nil), elements...)
}

// Copy returns a deep-enough copy of the item (element slice copied;
// elements themselves are treated as immutable value holders).
func (it *Item) Copy() *Item {
	return NewItem(it.elements)
}

// NewSequenceElement creates a VR-SQ element whose value is a list of
// nested dataset items, rather than a scalar value.Value.
func NewSequenceElement(t tag.Tag, items []*Item) (*Element, error) {
	return &Element{
		tag:   t,
		vr:    vr.SequenceOfItems,
		items: append([]*Item(nil), items...),
	}, nil
}

// IsSequence returns true if this element carries nested items instead
// of a scalar value.
func (e *Element) IsSequence() bool {
	return e.vr == vr.SequenceOfItems
}

// Items returns the nested sequence items. Returns nil for non-sequence
// elements.
func (e *Element) Items() []*Item {
	return e.items
}

// SetItems replaces the nested items of a sequence element. Returns an
// error if the element's VR is not SQ.
func (e *Element) SetItems(items []*Item) error {
	if e.vr != vr.SequenceOfItems {
		return fmt.Errorf("cannot set items on non-sequence element with VR %s", e.vr.String())
	}
	e.items = append([]*Item(nil), items...)
	return nil
}
