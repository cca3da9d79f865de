// Package keyfn turns normalized (snake_case, `$`-namespaced) column keys back into
// the key style a client asked for.
package keyfn

import (
	"fmt"
	"regexp"
	"strings"
)

// KeyFn is a closed set of key denormalization styles.
type KeyFn int

// enum of all supported styles
const (
	KebabCaseString KeyFn = iota
	KebabCaseKeyword
	SnakeCaseString
	SnakeCaseKeyword
	CamelCaseString
	CamelCaseKeyword
)

var names = map[KeyFn]string{
	KebabCaseString:  "kebab-case-string",
	KebabCaseKeyword: "kebab-case-keyword",
	SnakeCaseString:  "snake-case-string",
	SnakeCaseKeyword: "snake-case-keyword",
	CamelCaseString:  "camel-case-string",
	CamelCaseKeyword: "camel-case-keyword",
}

// Key is a denormalized key. Keyword keys may have a namespace, string keys keep everything in Name.
type Key struct {
	Namespace string
	Name      string
	Keyword   bool
}

// String renders keywords as :ns/name or :name, string keys as is.
func (k Key) String() string {
	if !k.Keyword {
		return k.Name
	}
	if k.Namespace != "" {
		return ":" + k.Namespace + "/" + k.Name
	}
	return ":" + k.Name
}

// Parse makes KeyFn from name. Both kebab-case-string and KEBAB_CASE_STRING forms are accepted.
func Parse(name string) (KeyFn, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	for k, v := range names {
		if v == norm {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown key fn %q", name)
}

func (f KeyFn) String() string {
	if n, ok := names[f]; ok {
		return n
	}
	return fmt.Sprintf("keyfn(%d)", int(f))
}

// MarshalText implements encoding.TextMarshaler
func (f KeyFn) MarshalText() ([]byte, error) {
	if _, ok := names[f]; !ok {
		return nil, fmt.Errorf("unknown key fn %d", int(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, used by yaml and toml decoders
func (f *KeyFn) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Denormalize converts a normalized key to this style.
func (f KeyFn) Denormalize(key string) Key {
	switch f {
	case KebabCaseString:
		return Key{Name: toStringKey(kebabCase(key))}
	case KebabCaseKeyword:
		return toKeyword(key, kebabCase)
	case SnakeCaseString:
		return Key{Name: toStringKey(key)}
	case SnakeCaseKeyword:
		return toKeyword(key, func(s string) string { return s })
	case CamelCaseString:
		return Key{Name: toStringKey(camelCase(key))}
	case CamelCaseKeyword:
		return toKeyword(key, camelCase)
	default:
		return Key{Name: key}
	}
}

var camelRe = regexp.MustCompile(`_.`)

// kebabCase replaces every underscore except a leading one with a dash
func kebabCase(s string) string {
	if s == "" {
		return s
	}
	return s[:1] + strings.ReplaceAll(s[1:], "_", "-")
}

// camelCase drops every underscore and upper-cases the character following it
func camelCase(s string) string {
	return camelRe.ReplaceAllStringFunc(s, func(m string) string { return strings.ToUpper(m[1:]) })
}

// toStringKey maps the reserved xt$ prefix to a single underscore
func toStringKey(s string) string {
	if strings.HasPrefix(s, "xt$") {
		return "_" + s[len("xt$"):]
	}
	return s
}

// toKeyword splits key on $, everything before the last part is the dot-joined namespace
func toKeyword(key string, transform func(string) string) Key {
	parts := strings.Split(key, "$")
	if len(parts) == 1 {
		return Key{Name: transform(key), Keyword: true}
	}
	ns := make([]string, 0, len(parts)-1)
	for _, p := range parts[:len(parts)-1] {
		ns = append(ns, transform(p))
	}
	return Key{Namespace: strings.Join(ns, "."), Name: transform(parts[len(parts)-1]), Keyword: true}
}
