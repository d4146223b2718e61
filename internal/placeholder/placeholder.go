// Package placeholder expands {token} markers in outgoing bot text.
package placeholder

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/BaSui01/chatflow/types"
)

var tokenPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Lookup resolves a binding name to its value. ok is false when the name is
// unbound.
type Lookup interface {
	Lookup(ctx context.Context, name string) (value string, ok bool, err error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, name string) (string, bool, error)

func (f LookupFunc) Lookup(ctx context.Context, name string) (string, bool, error) {
	return f(ctx, name)
}

// MapLookup resolves bindings from a fixed map.
type MapLookup map[string]string

func (m MapLookup) Lookup(_ context.Context, name string) (string, bool, error) {
	v, ok := m[name]
	return v, ok, nil
}

// Expand replaces every {token} in text with its bound value. Values are
// inserted verbatim and never rescanned. An unbound token fails with
// MISSING_BINDING; lookup failures are returned unchanged.
func Expand(ctx context.Context, text string, lookup Lookup) (string, error) {
	matches := tokenPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		name := text[m[2]:m[3]]
		value, ok, err := lookup.Lookup(ctx, name)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", types.Errorf(types.ErrMissingBinding, "no value bound for placeholder %q", name)
		}
		b.WriteString(text[last:m[0]])
		b.WriteString(value)
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

// Tokens lists the placeholder names in text in order of appearance.
func Tokens(text string) []string {
	matches := tokenPattern.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// FormatOptions enumerates options as "0. first\n1. second\n".
func FormatOptions(options []string) string {
	var b strings.Builder
	for i, opt := range options {
		b.WriteString(strconv.Itoa(i))
		b.WriteString(". ")
		b.WriteString(opt)
		b.WriteByte('\n')
	}
	return b.String()
}

// Render expands message and appends the enumerated options after a line
// break. With no message the result is the bare option list.
func Render(ctx context.Context, message string, options []string, lookup Lookup) (string, error) {
	text, err := Expand(ctx, message, lookup)
	if err != nil {
		return "", err
	}
	if len(options) == 0 {
		return text, nil
	}
	if text == "" {
		return FormatOptions(options), nil
	}
	return text + "\n" + FormatOptions(options), nil
}
