package segment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/normalizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/errors"
)

// DecodeSearchData parses a Doxygen search index script
// ("var searchData=[['key',['Display',[url,flag,scope],...]],...];").
// Both reference shapes are accepted. HTML entities in display names and
// labels are unescaped, keys are recomputed from the display name, and
// entries whose keys collide are merged. Entries come back in file order.
func DecodeSearchData(data []byte) ([]index.Entry, error) {
	start := bytes.IndexByte(data, '[')
	end := bytes.LastIndexByte(data, ']')
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no searchData array found", apperrors.ErrShardCorrupt)
	}
	literal, err := jsLiteralToJSON(data[start : end+1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrShardCorrupt, err)
	}
	var items []any
	if err := json.Unmarshal(literal, &items); err != nil {
		return nil, fmt.Errorf("%w: parsing searchData: %v", apperrors.ErrShardCorrupt, err)
	}

	byKey := make(map[string]int)
	var entries []index.Entry
	for i, item := range items {
		display, refs, err := decodeLegacyItem(item)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", apperrors.ErrShardSchema, i, err)
		}
		key := normalizer.Normalize(display)
		if j, ok := byKey[key]; ok {
			entries[j].References = append(entries[j].References, refs...)
			continue
		}
		byKey[key] = len(entries)
		entries = append(entries, index.Entry{Key: key, DisplayName: display, References: refs})
	}
	return entries, nil
}

func decodeLegacyItem(item any) (string, []index.Reference, error) {
	pair, ok := item.([]any)
	if !ok || len(pair) != 2 {
		return "", nil, fmt.Errorf("want [key, group], got %T", item)
	}
	group, ok := pair[1].([]any)
	if !ok || len(group) < 2 {
		return "", nil, fmt.Errorf("group is %T, want [display, references...]", pair[1])
	}
	rawDisplay, ok := group[0].(string)
	if !ok {
		return "", nil, fmt.Errorf("display name is %T, want string", group[0])
	}
	display := html.UnescapeString(rawDisplay)

	// Flattened single reference: ['Display', url, flag, scope].
	if _, flat := group[1].(string); flat {
		ref, err := legacyReference(display, group[1:])
		if err != nil {
			return "", nil, err
		}
		return display, []index.Reference{ref}, nil
	}

	refs := make([]index.Reference, 0, len(group)-1)
	for i, raw := range group[1:] {
		parts, ok := raw.([]any)
		if !ok {
			return "", nil, fmt.Errorf("reference %d is %T, want array", i, raw)
		}
		ref, err := legacyReference(display, parts)
		if err != nil {
			return "", nil, fmt.Errorf("reference %d: %v", i, err)
		}
		refs = append(refs, ref)
	}
	return display, refs, nil
}

// legacyReference turns [url, flag, scopeOrLabel] into a Reference. The
// third element is empty for free symbols, a bare type name for members
// listed without a signature, or a full "Type::Member(args)" label.
func legacyReference(display string, parts []any) (index.Reference, error) {
	if len(parts) < 1 {
		return index.Reference{}, fmt.Errorf("missing url")
	}
	link, ok := parts[0].(string)
	if !ok || link == "" {
		return index.Reference{}, fmt.Errorf("url is %v, want non-empty string", parts[0])
	}
	var text string
	if len(parts) >= 3 {
		s, ok := parts[2].(string)
		if !ok {
			return index.Reference{}, fmt.Errorf("scope is %T, want string", parts[2])
		}
		text = strings.TrimSpace(html.UnescapeString(s))
	}

	url, anchor := index.SplitLink(link)
	ref := index.Reference{URL: url, Anchor: anchor}
	switch {
	case text == "":
		ref.Label = display
	case strings.Contains(text, "::"):
		ref.Label = text
		ref.Scope = scopeOf(text)
	default:
		ref.Scope = text
		ref.Label = text + "::" + display
	}
	return ref, nil
}

// scopeOf returns the owning type of a "Type::Member(args)" label. Only the
// part before the argument list is considered, so "std::string" inside the
// arguments does not count.
func scopeOf(label string) string {
	head := label
	if i := strings.IndexByte(head, '('); i >= 0 {
		head = head[:i]
	}
	if i := strings.LastIndex(head, "::"); i > 0 {
		return head[:i]
	}
	return ""
}

// jsLiteralToJSON rewrites a JavaScript array literal that uses
// single-quoted strings into JSON.
func jsLiteralToJSON(src []byte) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(len(src))
	for i := 0; i < len(src); i++ {
		c := src[i]
		if c != '\'' && c != '"' {
			out.WriteByte(c)
			continue
		}
		quote := c
		var sb strings.Builder
		closed := false
		for i++; i < len(src); i++ {
			c = src[i]
			if c == '\\' && i+1 < len(src) {
				i++
				switch next := src[i]; next {
				case 'n':
					sb.WriteByte('\n')
				case 't':
					sb.WriteByte('\t')
				default:
					sb.WriteByte(next)
				}
				continue
			}
			if c == quote {
				closed = true
				break
			}
			sb.WriteByte(c)
		}
		if !closed {
			return nil, fmt.Errorf("unterminated string literal")
		}
		encoded, err := json.Marshal(sb.String())
		if err != nil {
			return nil, err
		}
		out.Write(encoded)
	}
	return out.Bytes(), nil
}
