// Package document decodes the JSON documents the drop index is built from.
// Objects are decoded in document order: the order monsters and aliases
// appear in the file determines monster order in the index and the order in
// which query aliases are applied.
package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/akalivaty/Artale-drop-bot/internal/store"
	apperrors "github.com/akalivaty/Artale-drop-bot/pkg/errors"
)

// DropTable maps monster names to the items they drop, in document order.
type DropTable struct {
	monsters []string
	items    map[string][]string
}

// NewDropTable returns an empty table.
func NewDropTable() *DropTable {
	return &DropTable{items: make(map[string][]string)}
}

// Set records the items a monster drops. Setting a monster twice replaces
// its items but keeps its original position.
func (t *DropTable) Set(monster string, items ...string) {
	if _, exists := t.items[monster]; !exists {
		t.monsters = append(t.monsters, monster)
	}
	t.items[monster] = append([]string(nil), items...)
}

// Items returns the raw item list for a monster.
func (t *DropTable) Items(monster string) ([]string, bool) {
	items, ok := t.items[monster]
	return items, ok
}

// Len returns the number of monsters.
func (t *DropTable) Len() int {
	return len(t.monsters)
}

// Range calls fn for each monster in document order until fn returns false.
func (t *DropTable) Range(fn func(monster string, items []string) bool) {
	for _, m := range t.monsters {
		if !fn(m, t.items[m]) {
			return
		}
	}
}

// NameTable is an ordered string-to-string mapping. It holds both the item
// alias table (canonical item -> alias) and the query alias table
// (canonical keyword -> alias substring).
type NameTable struct {
	keys   []string
	values map[string]string
}

// NewNameTable returns an empty table.
func NewNameTable() *NameTable {
	return &NameTable{values: make(map[string]string)}
}

// Set records key -> value, keeping the first position of key.
func (t *NameTable) Set(key, value string) {
	if _, exists := t.values[key]; !exists {
		t.keys = append(t.keys, key)
	}
	t.values[key] = value
}

// Get returns the value stored for key.
func (t *NameTable) Get(key string) (string, bool) {
	v, ok := t.values[key]
	return v, ok
}

// Len returns the number of entries.
func (t *NameTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}

// Range calls fn for each entry in document order until fn returns false.
// A nil table is empty.
func (t *NameTable) Range(fn func(key, value string) bool) {
	if t == nil {
		return
	}
	for _, k := range t.keys {
		if !fn(k, t.values[k]) {
			return
		}
	}
}

// ParseDropTable decodes a {"monster": ["item", ...]} object.
func ParseDropTable(data []byte) (*DropTable, error) {
	root, err := parseObject(data)
	if err != nil {
		return nil, err
	}
	table := NewDropTable()
	root.ForEach(func(key, value gjson.Result) bool {
		if !value.IsArray() {
			err = fmt.Errorf("monster %q: expected array of item names, got %s", key.String(), value.Type)
			return false
		}
		elems := value.Array()
		items := make([]string, 0, len(elems))
		for i, elem := range elems {
			if elem.Type != gjson.String {
				err = fmt.Errorf("monster %q: item %d is %s, not a string", key.String(), i, elem.Type)
				return false
			}
			items = append(items, elem.Str)
		}
		table.Set(key.String(), items...)
		return true
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

// ParseNameTable decodes a {"name": "other name"} object.
func ParseNameTable(data []byte) (*NameTable, error) {
	root, err := parseObject(data)
	if err != nil {
		return nil, err
	}
	table := NewNameTable()
	root.ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.String {
			err = fmt.Errorf("key %q: expected string, got %s", key.String(), value.Type)
			return false
		}
		table.Set(key.String(), value.Str)
		return true
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

// LoadDropTable reads and decodes the named drop table from s. Failures are
// *errors.DocumentError values of kind ErrMissingDocument or
// ErrMalformedDocument.
func LoadDropTable(ctx context.Context, s store.BlobStore, name string) (*DropTable, error) {
	data, err := read(ctx, s, name)
	if err != nil {
		return nil, err
	}
	table, err := ParseDropTable(data)
	if err != nil {
		return nil, apperrors.Malformed(name, err)
	}
	return table, nil
}

// LoadNameTable reads and decodes the named alias table from s.
func LoadNameTable(ctx context.Context, s store.BlobStore, name string) (*NameTable, error) {
	data, err := read(ctx, s, name)
	if err != nil {
		return nil, err
	}
	table, err := ParseNameTable(data)
	if err != nil {
		return nil, apperrors.Malformed(name, err)
	}
	return table, nil
}

func read(ctx context.Context, s store.BlobStore, name string) ([]byte, error) {
	data, err := s.Read(ctx, name)
	if err == nil {
		return data, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.Missing(name, err)
	}
	if ctx.Err() != nil {
		return nil, err
	}
	return nil, apperrors.Missing(name, err)
}

func parseObject(data []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, errors.New("invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return gjson.Result{}, fmt.Errorf("expected JSON object, got %s", root.Type)
	}
	return root, nil
}
