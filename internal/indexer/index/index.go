// Package index holds the item index: an ordered mapping from item name to
// either the monsters that drop it or the canonical name it aliases.
package index

// Kind tags an Entry as canonical or alias.
type Kind uint8

const (
	KindCanonical Kind = iota + 1
	KindAlias
)

func (k Kind) String() string {
	switch k {
	case KindCanonical:
		return "canonical"
	case KindAlias:
		return "alias"
	default:
		return "unknown"
	}
}

// Entry is one item index value. Canonical entries carry Monsters; alias
// entries carry RealName.
type Entry struct {
	Kind     Kind
	Monsters []string
	RealName string
}

// Canonical returns a canonical entry listing the given monsters.
func Canonical(monsters ...string) Entry {
	return Entry{Kind: KindCanonical, Monsters: monsters}
}

// Alias returns an alias entry pointing at realName.
func Alias(realName string) Entry {
	return Entry{Kind: KindAlias, RealName: realName}
}

func (e Entry) IsCanonical() bool { return e.Kind == KindCanonical }

func (e Entry) IsAlias() bool { return e.Kind == KindAlias }

// ItemIndex maps item names to entries and remembers insertion order, which
// is the iteration order used for search tie-breaks and for the cache file.
// An ItemIndex is not safe for concurrent mutation; once built it is only
// read.
type ItemIndex struct {
	names   []string
	entries map[string]Entry
}

// New returns an empty index.
func New() *ItemIndex {
	return &ItemIndex{entries: make(map[string]Entry)}
}

// Put stores e under name. A new name is appended to the iteration order; an
// existing name keeps its position.
func (x *ItemIndex) Put(name string, e Entry) {
	if _, exists := x.entries[name]; !exists {
		x.names = append(x.names, name)
	}
	x.entries[name] = e
}

// Get returns the entry stored under name.
func (x *ItemIndex) Get(name string) (Entry, bool) {
	e, ok := x.entries[name]
	return e, ok
}

// Len returns the number of keys, canonical and alias.
func (x *ItemIndex) Len() int {
	return len(x.names)
}

// Names returns the keys in iteration order.
func (x *ItemIndex) Names() []string {
	out := make([]string, len(x.names))
	copy(out, x.names)
	return out
}

// Range calls fn for each key in iteration order until fn returns false.
func (x *ItemIndex) Range(fn func(name string, e Entry) bool) {
	for _, name := range x.names {
		if !fn(name, x.entries[name]) {
			return
		}
	}
}

// Stats counts canonical and alias keys.
func (x *ItemIndex) Stats() (canonical, aliases int) {
	for _, e := range x.entries {
		switch e.Kind {
		case KindCanonical:
			canonical++
		case KindAlias:
			aliases++
		}
	}
	return canonical, aliases
}
