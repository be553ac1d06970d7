// Package alias rewrites query text using the query alias table and resolves
// item names to their canonical index entries.
package alias

import (
	"strings"

	"github.com/akalivaty/Artale-drop-bot/internal/document"
	"github.com/akalivaty/Artale-drop-bot/internal/indexer/index"
)

// RewriteQuery replaces every occurrence of each alias with its canonical
// keyword. Pairs apply in table order and each sees the output of the ones
// before it.
func RewriteQuery(query string, aliases *document.NameTable) string {
	aliases.Range(func(canonical, alias string) bool {
		if alias != "" && strings.Contains(query, alias) {
			query = strings.ReplaceAll(query, alias, canonical)
		}
		return true
	})
	return query
}

// ResolveItem returns the canonical entry for name and its canonical name.
// An alias resolves only when its target exists and is itself canonical.
func ResolveItem(name string, items *index.ItemIndex) (string, index.Entry, bool) {
	e, ok := items.Get(name)
	if !ok {
		return "", index.Entry{}, false
	}
	switch e.Kind {
	case index.KindCanonical:
		return name, e, true
	case index.KindAlias:
		target, ok := items.Get(e.RealName)
		if !ok || !target.IsCanonical() {
			return "", index.Entry{}, false
		}
		return e.RealName, target, true
	default:
		return "", index.Entry{}, false
	}
}
