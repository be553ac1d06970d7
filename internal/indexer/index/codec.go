package index

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

const (
	fieldMonsters = "monsters"
	fieldRealName = "real_name"
)

type canonicalJSON struct {
	Monsters []string `json:"monsters"`
}

type aliasJSON struct {
	RealName string `json:"real_name"`
}

// Encode serialises x as the cache document: a JSON object whose keys follow
// the index iteration order and whose values are {"monsters": [...]} or
// {"real_name": "..."}. Non-ASCII names are written unescaped.
func Encode(x *ItemIndex) ([]byte, error) {
	var buf bytes.Buffer
	if x.Len() == 0 {
		buf.WriteString("{}\n")
		return buf.Bytes(), nil
	}
	buf.WriteString("{\n")
	for i, name := range x.names {
		key, err := marshal(name, "")
		if err != nil {
			return nil, fmt.Errorf("encoding item name %q: %w", name, err)
		}
		var value any
		switch e := x.entries[name]; e.Kind {
		case KindCanonical:
			monsters := e.Monsters
			if monsters == nil {
				monsters = []string{}
			}
			value = canonicalJSON{Monsters: monsters}
		case KindAlias:
			value = aliasJSON{RealName: e.RealName}
		default:
			return nil, fmt.Errorf("encoding item %q: unknown entry kind %d", name, e.Kind)
		}
		body, err := marshal(value, "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding item %q: %w", name, err)
		}
		buf.WriteString("  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(body)
		if i < len(x.names)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// Decode parses a cache document written by Encode. Entries are taken
// verbatim; an entry that is neither variant, or both, fails the decode.
func Decode(data []byte) (*ItemIndex, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("expected JSON object, got %s", root.Type)
	}
	x := New()
	var err error
	root.ForEach(func(key, value gjson.Result) bool {
		var e Entry
		e, err = decodeEntry(value)
		if err != nil {
			err = fmt.Errorf("item %q: %w", key.String(), err)
			return false
		}
		x.Put(key.String(), e)
		return true
	})
	if err != nil {
		return nil, err
	}
	return x, nil
}

func decodeEntry(value gjson.Result) (Entry, error) {
	if !value.IsObject() {
		return Entry{}, fmt.Errorf("expected object, got %s", value.Type)
	}
	monsters := value.Get(fieldMonsters)
	realName := value.Get(fieldRealName)
	switch {
	case monsters.Exists() && realName.Exists():
		return Entry{}, fmt.Errorf("has both %q and %q", fieldMonsters, fieldRealName)
	case monsters.Exists():
		if !monsters.IsArray() {
			return Entry{}, fmt.Errorf("%q is %s, not an array", fieldMonsters, monsters.Type)
		}
		elems := monsters.Array()
		names := make([]string, 0, len(elems))
		for i, elem := range elems {
			if elem.Type != gjson.String {
				return Entry{}, fmt.Errorf("monster %d is %s, not a string", i, elem.Type)
			}
			names = append(names, elem.Str)
		}
		return Canonical(names...), nil
	case realName.Exists():
		if realName.Type != gjson.String {
			return Entry{}, fmt.Errorf("%q is %s, not a string", fieldRealName, realName.Type)
		}
		return Alias(realName.Str), nil
	default:
		return Entry{}, fmt.Errorf("has neither %q nor %q", fieldMonsters, fieldRealName)
	}
}

func marshal(v any, prefix string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if prefix != "" {
		enc.SetIndent(prefix, "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
