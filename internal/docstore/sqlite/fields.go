package sqlite

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/pantrio/pantrio/internal/docstore"
)

// normalize converts an arbitrary Go value into the JSON shape documents
// are stored in (map[string]any / []any / float64 / string / bool / nil),
// so deep-equality checks compare content, not Go types.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value not JSON-encodable: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("value not JSON-decodable: %w", err)
	}
	return out, nil
}

// applyFields applies a set of dotted-path field writes to doc in place.
// now is the resolution of ServerTimestamp for this write; a single write
// resolves every timestamp operator to the same instant.
func applyFields(doc map[string]any, fields docstore.Fields, now int64) error {
	for fieldPath, value := range fields {
		parent, key, err := navigate(doc, fieldPath)
		if err != nil {
			return err
		}

		var opErr error
		handled := docstore.OpVisitor{
			Delete: func() {
				delete(parent, key)
			},
			ServerTimestamp: func() {
				parent[key] = now
			},
			ArrayUnion: func(elems []any) {
				opErr = applyArrayUnion(parent, key, elems)
			},
			ArrayRemove: func(elems []any) {
				opErr = applyArrayRemove(parent, key, elems)
			},
		}.Visit(value)
		if opErr != nil {
			return fmt.Errorf("field %q: %w", fieldPath, opErr)
		}
		if handled {
			continue
		}

		norm, err := normalize(value)
		if err != nil {
			return fmt.Errorf("field %q: %w", fieldPath, err)
		}
		parent[key] = norm
	}
	return nil
}

// navigate walks a dotted field path, creating intermediate maps as needed,
// and returns the innermost map plus the final key.
func navigate(doc map[string]any, fieldPath string) (map[string]any, string, error) {
	segs := strings.Split(fieldPath, ".")
	cur := doc
	for _, seg := range segs[:len(segs)-1] {
		if seg == "" {
			return nil, "", fmt.Errorf("empty segment in field path %q", fieldPath)
		}
		next, ok := cur[seg]
		if !ok || next == nil {
			child := map[string]any{}
			cur[seg] = child
			cur = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return nil, "", fmt.Errorf("field path %q crosses non-object value", fieldPath)
		}
		cur = child
	}
	key := segs[len(segs)-1]
	if key == "" {
		return nil, "", fmt.Errorf("empty segment in field path %q", fieldPath)
	}
	return cur, key, nil
}

func applyArrayUnion(parent map[string]any, key string, elems []any) error {
	arr, err := arrayAt(parent, key)
	if err != nil {
		return err
	}
	for _, elem := range elems {
		norm, err := normalize(elem)
		if err != nil {
			return err
		}
		if !containsDeep(arr, norm) {
			arr = append(arr, norm)
		}
	}
	parent[key] = arr
	return nil
}

func applyArrayRemove(parent map[string]any, key string, elems []any) error {
	arr, err := arrayAt(parent, key)
	if err != nil {
		return err
	}
	for _, elem := range elems {
		norm, err := normalize(elem)
		if err != nil {
			return err
		}
		kept := arr[:0]
		for _, have := range arr {
			if !reflect.DeepEqual(have, norm) {
				kept = append(kept, have)
			}
		}
		arr = kept
	}
	parent[key] = arr
	return nil
}

// arrayAt reads an array field, treating a missing field as empty.
func arrayAt(parent map[string]any, key string) ([]any, error) {
	cur, ok := parent[key]
	if !ok || cur == nil {
		return []any{}, nil
	}
	arr, ok := cur.([]any)
	if !ok {
		return nil, fmt.Errorf("array operator applied to non-array value")
	}
	return arr, nil
}

func containsDeep(arr []any, elem any) bool {
	for _, have := range arr {
		if reflect.DeepEqual(have, elem) {
			return true
		}
	}
	return false
}
