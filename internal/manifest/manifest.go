// Package manifest describes which item types and members are in scope for
// synchronization and round-trips that description through package.xml.
package manifest

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/forcesync/internal/utils"
)

const (
	// FileName is the manifest item's name inside the source folder and the archive.
	FileName = "package.xml"

	Namespace      = "http://soap.sforce.com/2006/04/metadata"
	DefaultVersion = "36.0"
	Wildcard       = "*"
)

var (
	ErrNoTypes   = errors.New("manifest: no types")
	ErrNoVersion = errors.New("manifest: no version")
)

// DefaultTypes are requested when no manifest is configured.
var DefaultTypes = []string{"ApexClass", "ApexComponent", "ApexPage", "ApexTrigger", "StaticResource"}

// Type selects members of one item type. A member of "*" selects all of them.
type Type struct {
	Members []string `xml:"members" json:"members"`
	Name    string   `xml:"name" json:"name"`
}

// Descriptor is the in-memory form of package.xml.
type Descriptor struct {
	XMLName xml.Name `xml:"Package" json:"-"`
	Xmlns   string   `xml:"xmlns,attr,omitempty" json:"-"`
	Types   []Type   `xml:"types" json:"types"`
	Version string   `xml:"version" json:"version"`
}

// Default returns the default descriptor. An empty version means DefaultVersion.
func Default(version string) *Descriptor {
	if version == "" {
		version = DefaultVersion
	}
	d := &Descriptor{Xmlns: Namespace, Version: version}
	for _, name := range DefaultTypes {
		d.Types = append(d.Types, Type{Name: name, Members: []string{Wildcard}})
	}
	return d
}

// FromXML parses a package.xml document.
func FromXML(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := xml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("manifest: parse: %w", err)
	}
	if d.Xmlns == "" {
		d.Xmlns = Namespace
	}
	d.Normalize()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Load reads and parses the package.xml at path.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %q: %w", path, err)
	}
	return FromXML(data)
}

// ToXML renders the descriptor as an indented package.xml document.
func (d *Descriptor) ToXML() ([]byte, error) {
	out := *d
	// the namespace is carried by Xmlns, a parsed XMLName would emit it twice
	out.XMLName = xml.Name{}
	if out.Xmlns == "" {
		out.Xmlns = Namespace
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "    ")
	if err := enc.Encode(&out); err != nil {
		return nil, fmt.Errorf("manifest: encode: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Save writes the descriptor to path.
func (d *Descriptor) Save(path string) error {
	data, err := d.ToXML()
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(path, data, 0o644)
}

func (d *Descriptor) Validate() error {
	if d.Version == "" {
		return ErrNoVersion
	}
	if len(d.Types) == 0 {
		return ErrNoTypes
	}
	for i, t := range d.Types {
		if t.Name == "" {
			return fmt.Errorf("manifest: type %d has no name", i)
		}
	}
	return nil
}

// Normalize merges duplicate types and drops duplicate members, keeping first-seen order.
// A type with no members selects everything.
func (d *Descriptor) Normalize() {
	index := make(map[string]int, len(d.Types))
	seen := make(map[string]mapset.Set[string], len(d.Types))
	var types []Type

	for _, t := range d.Types {
		i, ok := index[t.Name]
		if !ok {
			i = len(types)
			index[t.Name] = i
			seen[t.Name] = mapset.NewThreadUnsafeSet[string]()
			types = append(types, Type{Name: t.Name})
		}
		for _, m := range t.Members {
			if seen[t.Name].Add(m) {
				types[i].Members = append(types[i].Members, m)
			}
		}
	}
	for i := range types {
		if len(types[i].Members) == 0 {
			types[i].Members = []string{Wildcard}
		}
	}
	d.Types = types
}

// TypeNames returns the names of the selected types in manifest order.
func (d *Descriptor) TypeNames() []string {
	names := make([]string, 0, len(d.Types))
	for _, t := range d.Types {
		names = append(names, t.Name)
	}
	return names
}

// Includes reports whether the member of typeName is selected.
func (d *Descriptor) Includes(typeName, member string) bool {
	for _, t := range d.Types {
		if t.Name != typeName {
			continue
		}
		if slices.Contains(t.Members, Wildcard) || slices.Contains(t.Members, member) {
			return true
		}
	}
	return false
}
