package manifest

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"path"
	"strings"
)

// MetaSuffix marks a sidecar metadata file, e.g. "Foo.cls-meta.xml".
const MetaSuffix = "-meta.xml"

// TypeInfo maps an item type to its folder and file suffix in the source tree.
type TypeInfo struct {
	Name      string
	Folder    string
	Suffix    string
	HasStatus bool
	HasLabel  bool
}

var knownTypes = []TypeInfo{
	{Name: "ApexClass", Folder: "classes", Suffix: ".cls", HasStatus: true},
	{Name: "ApexComponent", Folder: "components", Suffix: ".component", HasLabel: true},
	{Name: "ApexPage", Folder: "pages", Suffix: ".page", HasLabel: true},
	{Name: "ApexTrigger", Folder: "triggers", Suffix: ".trigger", HasStatus: true},
	{Name: "StaticResource", Folder: "staticresources", Suffix: ".resource"},
}

// LookupType returns the type registered under name.
func LookupType(name string) (TypeInfo, bool) {
	for _, t := range knownTypes {
		if t.Name == name {
			return t, true
		}
	}
	return TypeInfo{}, false
}

// TypeForPath infers the item type of a slash separated source-relative path
// from its folder and suffix, and returns the member name.
func TypeForPath(relPath string) (TypeInfo, string, bool) {
	dir := path.Base(path.Dir(relPath))
	base := path.Base(relPath)
	for _, t := range knownTypes {
		if dir == t.Folder && strings.HasSuffix(base, t.Suffix) {
			return t, strings.TrimSuffix(base, t.Suffix), true
		}
	}
	return TypeInfo{}, "", false
}

// IsSidecar reports whether name is a "-meta.xml" sidecar.
func IsSidecar(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), MetaSuffix)
}

// SidecarPath returns the sidecar path of an item path.
func SidecarPath(itemPath string) string {
	return itemPath + MetaSuffix
}

type metaXML struct {
	XMLName      xml.Name
	Xmlns        string `xml:"xmlns,attr"`
	APIVersion   string `xml:"apiVersion,omitempty"`
	CacheControl string `xml:"cacheControl,omitempty"`
	ContentType  string `xml:"contentType,omitempty"`
	Label        string `xml:"label,omitempty"`
	Status       string `xml:"status,omitempty"`
}

// MetaXML renders a default sidecar for a member of the given type.
func MetaXML(t TypeInfo, member, apiVersion string) ([]byte, error) {
	if apiVersion == "" {
		apiVersion = DefaultVersion
	}

	doc := metaXML{
		XMLName: xml.Name{Local: t.Name},
		Xmlns:   Namespace,
	}
	switch {
	case t.HasStatus:
		doc.APIVersion = apiVersion
		doc.Status = "Active"
	case t.HasLabel:
		doc.APIVersion = apiVersion
		doc.Label = member
	case t.Name == "StaticResource":
		doc.CacheControl = "Private"
		doc.ContentType = "application/octet-stream"
	default:
		return nil, fmt.Errorf("manifest: no sidecar template for %s", t.Name)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("manifest: encode sidecar: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
