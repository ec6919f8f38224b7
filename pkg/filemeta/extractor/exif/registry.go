package exif

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/tendant/file-metadata/pkg/filemeta"
	"gopkg.in/yaml.v3"
)

// Directory namespaces
const (
	IFD0       = 0
	IFD1       = 1
	ExifIFD    = 2
	GPSIFD     = 3
	InteropIFD = 4
)

// ifdPaths maps a directory namespace to its IFD path in go-exif's notation
var ifdPaths = map[int]string{
	IFD0:       "IFD",
	IFD1:       "IFD1",
	ExifIFD:    "IFD/Exif",
	GPSIFD:     "IFD/GPSInfo",
	InteropIFD: "IFD/Exif/Iop",
}

//go:embed tags.yaml
var tagsYAML []byte

// DefaultRegistry returns a fresh copy of the built-in tag registry.
func DefaultRegistry() filemeta.Registry {
	reg, err := ParseRegistry(tagsYAML)
	if err != nil {
		panic(fmt.Sprintf("exif: embedded tag registry: %v", err))
	}
	return reg
}

// ParseRegistry decodes a YAML tag registry.
func ParseRegistry(data []byte) (filemeta.Registry, error) {
	var reg filemeta.Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return filemeta.Registry{}, fmt.Errorf("failed to parse tag registry: %w", err)
	}
	return reg, nil
}

// ApplyAliasFile extends reg with the namespace aliases listed in a YAML
// file of the form
//
//	IFD0: [main, primary]
//	GPS: [location]
func ApplyAliasFile(reg filemeta.Registry, path string) (filemeta.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return reg, fmt.Errorf("failed to read alias file: %w", err)
	}

	var aliases yaml.Node
	if err := yaml.Unmarshal(data, &aliases); err != nil {
		return reg, fmt.Errorf("failed to parse alias file: %w", err)
	}
	if len(aliases.Content) == 0 {
		return reg, nil
	}

	// Walk the mapping node so aliases apply in file order
	root := aliases.Content[0]
	if root.Kind != yaml.MappingNode {
		return reg, fmt.Errorf("alias file %s: expected a mapping", path)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		ns := root.Content[i].Value
		var list []string
		if err := root.Content[i+1].Decode(&list); err != nil {
			return reg, fmt.Errorf("alias file %s: namespace %s: %w", path, ns, err)
		}
		if reg, err = reg.WithAliases(ns, list...); err != nil {
			return reg, err
		}
	}
	return reg, nil
}
