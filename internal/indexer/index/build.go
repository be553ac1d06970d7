package index

import (
	"fmt"

	"github.com/akalivaty/Artale-drop-bot/internal/document"
)

// Build inverts drops into an item index and adds the item aliases whose
// canonical name the drops produced.
//
// Monsters are listed per item in first-seen order and never twice. An alias
// is skipped when its canonical name is unknown or when its name is itself a
// canonical item, so every name stays canonical XOR alias and every alias is
// one hop from a canonical entry. An alias name shared by several items
// points at the last of them and keeps its first position.
func Build(drops *document.DropTable, aliases *document.NameTable) *ItemIndex {
	x := New()
	seen := make(map[string]map[string]struct{})

	drops.Range(func(monster string, items []string) bool {
		for _, item := range items {
			dropped, ok := seen[item]
			if !ok {
				dropped = make(map[string]struct{})
				seen[item] = dropped
			}
			if _, dup := dropped[monster]; dup {
				continue
			}
			dropped[monster] = struct{}{}
			e, _ := x.Get(item)
			x.Put(item, Canonical(append(e.Monsters, monster)...))
		}
		return true
	})

	aliases.Range(func(realName, aliasName string) bool {
		target, ok := x.Get(realName)
		if !ok || !target.IsCanonical() {
			return true
		}
		if existing, taken := x.Get(aliasName); taken && existing.IsCanonical() {
			return true
		}
		x.Put(aliasName, Alias(realName))
		return true
	})
	return x
}

// Validate checks that every alias points at an existing canonical entry and
// that every entry has a known kind.
func (x *ItemIndex) Validate() error {
	for _, name := range x.names {
		e := x.entries[name]
		switch e.Kind {
		case KindCanonical:
		case KindAlias:
			target, ok := x.entries[e.RealName]
			if !ok {
				return fmt.Errorf("alias %q points at missing item %q", name, e.RealName)
			}
			if !target.IsCanonical() {
				return fmt.Errorf("alias %q points at %s entry %q", name, target.Kind, e.RealName)
			}
		default:
			return fmt.Errorf("item %q has unknown entry kind %d", name, e.Kind)
		}
	}
	return nil
}
