package docmap

import (
	"fmt"
	"strings"
)

// Schema lists the mappings a DB holds. Open creates a bucket for each of them.
// The zero value is an empty schema.
type Schema struct {
	mappings []Mapping
	byName   map[string]Mapping
}

func (scm *Schema) Mappings() []Mapping {
	return append([]Mapping(nil), scm.mappings...)
}

func (scm *Schema) MappingNamed(name string) (Mapping, bool) {
	m, ok := scm.byName[strings.ToLower(name)]
	return m, ok
}

// AddMapping declares a DocumentID → UserID mapping stored in a bucket
// with the given name. It panics on an empty or duplicate name.
func AddMapping(scm *Schema, name string) Mapping {
	if name == "" {
		panic("empty mapping name")
	}
	if scm.byName == nil {
		scm.byName = make(map[string]Mapping)
	}
	lower := strings.ToLower(name)
	if _, dup := scm.byName[lower]; dup {
		panic(fmt.Errorf("duplicate mapping %q", name))
	}
	m := Mapping{name: name}
	scm.mappings = append(scm.mappings, m)
	scm.byName[lower] = m
	return m
}
