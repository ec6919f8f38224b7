package filemeta

import (
	"fmt"
	"strconv"
	"strings"
)

// Key identifies a metadata field symbolically. The set of implementations is
// closed: Name, Qualified, QualifiedID and RawID.
type Key interface {
	isKey()
}

// Name is a bare field name resolved against the field's default namespace.
type Name string

// Qualified is a field name inside an explicit namespace.
type Qualified struct {
	Namespace string
	Name      string
}

// QualifiedID is a numeric field id inside an explicit namespace.
type QualifiedID struct {
	Namespace string
	ID        uint32
}

// RawID is a numeric field id resolved against its default namespace.
type RawID uint32

func (Name) isKey()        {}
func (Qualified) isKey()   {}
func (QualifiedID) isKey() {}
func (RawID) isKey()       {}

// Address is the extractor-internal location a key resolves to.
type Address struct {
	Namespace int
	Field     uint32
}

func (a Address) String() string {
	return fmt.Sprintf("%d:0x%04x", a.Namespace, a.Field)
}

// SupportedKey is a (namespace, name) pair the resolver can map to an address.
type SupportedKey struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// NamespaceInfo describes a supported namespace.
type NamespaceInfo struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// KeyOf converts a loosely typed value into a Key. Accepted shapes are a Key,
// a string (bare name), an unsigned or non-negative integer (raw id), and a
// two element slice of [namespace, name-or-id] where the namespace is a
// string or an integer namespace id.
func KeyOf(v any) (Key, error) {
	switch k := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: no key given", ErrInvalidKeySpec)
	case Key:
		return k, nil
	case string:
		if k == "" {
			return nil, fmt.Errorf("%w: empty key", ErrInvalidKeySpec)
		}
		return Name(k), nil
	case []string:
		parts := make([]any, len(k))
		for i := range k {
			parts[i] = k[i]
		}
		return tupleKey(parts)
	case []any:
		return tupleKey(k)
	}
	if id, ok := asFieldID(v); ok {
		return RawID(id), nil
	}
	return nil, fmt.Errorf("%w: unsupported key type %T", ErrInvalidKeySpec, v)
}

func tupleKey(parts []any) (Key, error) {
	if len(parts) != 2 || parts[0] == nil || parts[1] == nil {
		return nil, fmt.Errorf("%w: expected [namespace, field]", ErrInvalidKeySpec)
	}

	var ns string
	switch n := parts[0].(type) {
	case string:
		ns = n
	default:
		id, ok := asFieldID(n)
		if !ok {
			return nil, fmt.Errorf("%w: invalid namespace %v", ErrInvalidKeySpec, parts[0])
		}
		ns = strconv.FormatUint(uint64(id), 10)
	}
	if ns == "" {
		return nil, fmt.Errorf("%w: empty namespace", ErrInvalidKeySpec)
	}

	switch f := parts[1].(type) {
	case string:
		if f == "" {
			return nil, fmt.Errorf("%w: empty field name", ErrInvalidKeySpec)
		}
		return Qualified{Namespace: ns, Name: f}, nil
	default:
		id, ok := asFieldID(f)
		if !ok {
			return nil, fmt.Errorf("%w: invalid field %v", ErrInvalidKeySpec, parts[1])
		}
		return QualifiedID{Namespace: ns, ID: id}, nil
	}
}

func asFieldID(v any) (uint32, bool) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint:
		n = int64(x)
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint32:
		return x, true
	case uint64:
		if x > uint64(^uint32(0)) {
			return 0, false
		}
		return uint32(x), true
	default:
		return 0, false
	}
	if n < 0 || n > int64(^uint32(0)) {
		return 0, false
	}
	return uint32(n), true
}

// ParseKey parses the textual key forms used on the command line:
//
//	Orientation        bare name
//	274, 0x0112        raw id
//	Main:Orientation   qualified name
//	Main:0x0112        qualified id
func ParseKey(s string) (Key, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidKeySpec)
	}
	ns, field, qualified := strings.Cut(s, ":")
	if !qualified {
		if id, ok := parseNumber(s); ok {
			return RawID(id), nil
		}
		return Name(s), nil
	}
	ns, field = strings.TrimSpace(ns), strings.TrimSpace(field)
	if ns == "" || field == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKeySpec, s)
	}
	if id, ok := parseNumber(field); ok {
		return QualifiedID{Namespace: ns, ID: id}, nil
	}
	return Qualified{Namespace: ns, Name: field}, nil
}

func parseNumber(s string) (uint32, bool) {
	if s == "" || !(s[0] >= '0' && s[0] <= '9') {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// FormatKey renders a key in the ParseKey syntax.
func FormatKey(k Key) string {
	switch k := k.(type) {
	case nil:
		return "<nil>"
	case Name:
		return string(k)
	case Qualified:
		return k.Namespace + ":" + k.Name
	case QualifiedID:
		return fmt.Sprintf("%s:0x%04x", k.Namespace, k.ID)
	case RawID:
		return fmt.Sprintf("0x%04x", uint32(k))
	default:
		return fmt.Sprintf("%v", k)
	}
}
