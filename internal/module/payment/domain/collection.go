package domain

// Scope selects which part of the ledger a filter looks at.
type Scope int

const (
	// ScopeAll considers the whole ledger.
	ScopeAll Scope = iota
	// ScopeWindow considers events since the most recent successful authorization.
	ScopeWindow
)

// HistoryItemCollection is an insertion-ordered sequence of ledger entries.
// Filters return new collections and leave the receiver untouched.
type HistoryItemCollection struct {
	items []HistoryItem
}

// NewHistoryItemCollection creates a collection from items in insertion order.
func NewHistoryItemCollection(items ...HistoryItem) *HistoryItemCollection {
	c := &HistoryItemCollection{items: make([]HistoryItem, len(items))}
	copy(c.items, items)
	return c
}

// Len returns the number of entries.
func (c *HistoryItemCollection) Len() int {
	return len(c.items)
}

// IsEmpty reports whether the collection has no entries.
func (c *HistoryItemCollection) IsEmpty() bool {
	return len(c.items) == 0
}

// Items returns a copy of the entries in insertion order.
func (c *HistoryItemCollection) Items() []HistoryItem {
	out := make([]HistoryItem, len(c.items))
	copy(out, c.items)
	return out
}

// First returns the oldest entry.
func (c *HistoryItemCollection) First() (HistoryItem, bool) {
	if len(c.items) == 0 {
		return HistoryItem{}, false
	}
	return c.items[0], true
}

// Last returns the most recently appended entry.
func (c *HistoryItemCollection) Last() (HistoryItem, bool) {
	if len(c.items) == 0 {
		return HistoryItem{}, false
	}
	return c.items[len(c.items)-1], true
}

func (c *HistoryItemCollection) append(item HistoryItem) {
	c.items = append(c.items, item)
}

// Contains reports whether an entry with the same psp reference, event code and
// success flag exists.
func (c *HistoryItemCollection) Contains(key EventKey) bool {
	for _, it := range c.items {
		if it.Key() == key {
			return true
		}
	}
	return false
}

// Window returns the entries since the most recent successful authorization,
// that authorization included. Without one, the whole ledger is returned.
func (c *HistoryItemCollection) Window() *HistoryItemCollection {
	for i := len(c.items) - 1; i >= 0; i-- {
		if c.items[i].Is(EventAuthorisation) {
			return NewHistoryItemCollection(c.items[i:]...)
		}
	}
	return NewHistoryItemCollection(c.items...)
}

// Since returns the entries from index i onward.
func (c *HistoryItemCollection) Since(i int) *HistoryItemCollection {
	if i < 0 {
		i = 0
	}
	if i > len(c.items) {
		i = len(c.items)
	}
	return NewHistoryItemCollection(c.items[i:]...)
}

func (c *HistoryItemCollection) scoped(scope Scope) []HistoryItem {
	if scope == ScopeWindow {
		return c.Window().items
	}
	return c.items
}

// Filter returns the entries in scope that satisfy keep.
func (c *HistoryItemCollection) Filter(scope Scope, keep func(HistoryItem) bool) *HistoryItemCollection {
	out := &HistoryItemCollection{}
	for _, it := range c.scoped(scope) {
		if keep(it) {
			out.items = append(out.items, it)
		}
	}
	return out
}

// ByPspReference filters by provider reference.
func (c *HistoryItemCollection) ByPspReference(scope Scope, psp string) *HistoryItemCollection {
	return c.Filter(scope, func(it HistoryItem) bool { return it.PspReference() == psp })
}

// ByEventCode filters by any of the given event codes.
func (c *HistoryItemCollection) ByEventCode(scope Scope, codes ...EventCode) *HistoryItemCollection {
	return c.Filter(scope, func(it HistoryItem) bool {
		for _, code := range codes {
			if it.EventCode() == code {
				return true
			}
		}
		return false
	})
}

// BySuccess filters by success flag.
func (c *HistoryItemCollection) BySuccess(scope Scope, success bool) *HistoryItemCollection {
	return c.Filter(scope, func(it HistoryItem) bool { return it.Success() == success })
}

// ByOriginalReference filters by originating authorization reference.
func (c *HistoryItemCollection) ByOriginalReference(scope Scope, ref string) *HistoryItemCollection {
	return c.Filter(scope, func(it HistoryItem) bool { return it.OriginalReference() == ref })
}

// Successful returns the successful entries of the given codes.
func (c *HistoryItemCollection) Successful(scope Scope, codes ...EventCode) *HistoryItemCollection {
	return c.Filter(scope, func(it HistoryItem) bool { return it.Is(codes...) })
}

// LastIndexOf returns the index of the last entry satisfying match, or -1.
func (c *HistoryItemCollection) LastIndexOf(match func(HistoryItem) bool) int {
	for i := len(c.items) - 1; i >= 0; i-- {
		if match(c.items[i]) {
			return i
		}
	}
	return -1
}

// Sum adds up the amounts of all entries.
func (c *HistoryItemCollection) Sum() (Amount, error) {
	var total Amount
	for _, it := range c.items {
		var err error
		if total, err = total.Add(it.Amount()); err != nil {
			return Amount{}, err
		}
	}
	return total, nil
}
