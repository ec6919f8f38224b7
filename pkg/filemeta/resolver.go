package filemeta

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Registry is the static table a Resolver is built from: the namespaces an
// extractor addresses, their aliases, and the fields valid in each.
// Registration order is significant: it drives default-namespace tie breaks
// and enumeration order.
type Registry struct {
	Namespaces []NamespaceDef `yaml:"namespaces" json:"namespaces"`
}

// NamespaceDef describes one namespace of a Registry.
type NamespaceDef struct {
	ID      int        `yaml:"id" json:"id"`
	Name    string     `yaml:"name" json:"name"`
	Aliases []string   `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Fields  []FieldDef `yaml:"fields" json:"fields"`

	// QualifiedOnly excludes the namespace from bare-name defaults.
	QualifiedOnly bool `yaml:"qualified_only,omitempty" json:"qualified_only,omitempty"`
}

// FieldDef is a named field inside a namespace.
type FieldDef struct {
	ID   uint32 `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// WithAliases returns a copy of the registry with extra aliases added to the
// namespace matching ns (case-insensitive, by name or existing alias).
func (r Registry) WithAliases(ns string, aliases ...string) (Registry, error) {
	out := r.clone()
	want := strings.ToLower(ns)
	for i := range out.Namespaces {
		def := &out.Namespaces[i]
		if strings.ToLower(def.Name) == want || containsFold(def.Aliases, ns) {
			def.Aliases = append(def.Aliases, aliases...)
			return out, nil
		}
	}
	return r, fmt.Errorf("%w: namespace %q", ErrUnknownKey, ns)
}

func (r Registry) clone() Registry {
	out := Registry{Namespaces: make([]NamespaceDef, len(r.Namespaces))}
	for i, def := range r.Namespaces {
		def.Aliases = append([]string(nil), def.Aliases...)
		def.Fields = append([]FieldDef(nil), def.Fields...)
		out.Namespaces[i] = def
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// Resolver maps symbolic keys onto addresses. The reverse tables are derived
// once from the registry at construction and owned by the resolver, so two
// resolvers never share state.
type Resolver struct {
	namespaces []NamespaceInfo
	keys       []SupportedKey

	nsByName  map[string]int
	nsByID    map[int]string
	perNS     map[int]map[string]uint32
	names     map[Address]string
	defaults  map[string]Address
	rawIDs    map[uint32]Address
	qualified map[string]bool
	qualIDs   map[uint32]bool
}

// NewResolver builds a resolver from a registry.
func NewResolver(reg Registry) (*Resolver, error) {
	r := &Resolver{
		nsByName:  make(map[string]int),
		nsByID:    make(map[int]string),
		perNS:     make(map[int]map[string]uint32),
		names:     make(map[Address]string),
		defaults:  make(map[string]Address),
		rawIDs:    make(map[uint32]Address),
		qualified: make(map[string]bool),
		qualIDs:   make(map[uint32]bool),
	}

	for _, def := range reg.Namespaces {
		if def.Name == "" {
			return nil, errors.New("namespace name is required")
		}
		if _, dup := r.nsByID[def.ID]; dup {
			return nil, fmt.Errorf("duplicate namespace id %d", def.ID)
		}
		r.nsByID[def.ID] = def.Name
		r.namespaces = append(r.namespaces, NamespaceInfo{Name: def.Name, ID: def.ID})

		for _, alias := range append([]string{def.Name}, def.Aliases...) {
			a := strings.ToLower(alias)
			if other, taken := r.nsByName[a]; taken && other != def.ID {
				return nil, fmt.Errorf("namespace alias %q used by namespaces %d and %d", alias, other, def.ID)
			}
			r.nsByName[a] = def.ID
		}

		fields := make(map[string]uint32, len(def.Fields))
		r.perNS[def.ID] = fields
		for _, f := range def.Fields {
			n := strings.ToLower(f.Name)
			if _, seen := fields[n]; seen {
				continue
			}
			fields[n] = f.ID
			addr := Address{Namespace: def.ID, Field: f.ID}
			if _, named := r.names[addr]; !named {
				r.names[addr] = f.Name
			}
			r.keys = append(r.keys, SupportedKey{Namespace: def.Name, Name: f.Name})

			if def.QualifiedOnly {
				r.qualified[n] = true
				r.qualIDs[f.ID] = true
				continue
			}
			if _, ok := r.defaults[n]; !ok {
				r.defaults[n] = addr
			}
			if _, ok := r.rawIDs[f.ID]; !ok {
				r.rawIDs[f.ID] = addr
			}
		}
	}

	return r, nil
}

// MustResolver is like NewResolver but panics on an invalid registry. It is
// meant for registries compiled into a program.
func MustResolver(reg Registry) *Resolver {
	r, err := NewResolver(reg)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve maps a key onto an address.
func (r *Resolver) Resolve(k Key) (Address, error) {
	addr, err := r.resolve(k)
	if err != nil {
		return Address{}, &KeyError{Key: k, Err: err}
	}
	return addr, nil
}

func (r *Resolver) resolve(k Key) (Address, error) {
	switch k := k.(type) {
	case Name:
		if k == "" {
			return Address{}, ErrInvalidKeySpec
		}
		n := strings.ToLower(string(k))
		if addr, ok := r.defaults[n]; ok {
			return addr, nil
		}
		if r.qualified[n] {
			return Address{}, ErrAmbiguousKey
		}
		return Address{}, ErrUnknownKey

	case Qualified:
		if k.Namespace == "" || k.Name == "" {
			return Address{}, ErrInvalidKeySpec
		}
		ns, err := r.namespaceID(k.Namespace)
		if err != nil {
			return Address{}, err
		}
		id, ok := r.perNS[ns][strings.ToLower(k.Name)]
		if !ok {
			return Address{}, fmt.Errorf("%w: %q is not valid in namespace %s", ErrUnknownKey, k.Name, r.nsByID[ns])
		}
		return Address{Namespace: ns, Field: id}, nil

	case QualifiedID:
		if k.Namespace == "" {
			return Address{}, ErrInvalidKeySpec
		}
		ns, err := r.namespaceID(k.Namespace)
		if err != nil {
			return Address{}, err
		}
		return Address{Namespace: ns, Field: k.ID}, nil

	case RawID:
		if addr, ok := r.rawIDs[uint32(k)]; ok {
			return addr, nil
		}
		if r.qualIDs[uint32(k)] {
			return Address{}, ErrAmbiguousKey
		}
		return Address{}, ErrUnknownKey

	case nil:
		return Address{}, ErrInvalidKeySpec

	default:
		return Address{}, fmt.Errorf("%w: %T", ErrInvalidKeySpec, k)
	}
}

func (r *Resolver) namespaceID(ns string) (int, error) {
	if id, ok := r.nsByName[strings.ToLower(ns)]; ok {
		return id, nil
	}
	if n, err := strconv.Atoi(ns); err == nil {
		if _, ok := r.nsByID[n]; ok {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: namespace %q", ErrUnknownKey, ns)
}

// SupportedKeys lists the keys valid in the namespace whose canonical name
// matches namespace case-insensitively, or all keys when namespace is empty.
// Order follows registration order, namespace-major.
func (r *Resolver) SupportedKeys(namespace string) []SupportedKey {
	out := make([]SupportedKey, 0, len(r.keys))
	for _, k := range r.keys {
		if namespace == "" || strings.EqualFold(k.Namespace, namespace) {
			out = append(out, k)
		}
	}
	return out
}

// Namespaces lists the supported namespaces in registration order.
func (r *Resolver) Namespaces() []NamespaceInfo {
	return append([]NamespaceInfo(nil), r.namespaces...)
}

// Lookup returns the canonical (namespace, name) of an address.
func (r *Resolver) Lookup(addr Address) (SupportedKey, bool) {
	name, ok := r.names[addr]
	if !ok {
		return SupportedKey{}, false
	}
	return SupportedKey{Namespace: r.nsByID[addr.Namespace], Name: name}, true
}

// NamespaceName returns the canonical name of a namespace id.
func (r *Resolver) NamespaceName(id int) (string, bool) {
	name, ok := r.nsByID[id]
	return name, ok
}
