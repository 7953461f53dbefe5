package metadata

import "commerce-backend/internal/ability"

// ParentRef scopes a nested resource to its parent, e.g. regions under a
// country. Field is the foreign key column on the child.
type ParentRef struct {
	Entity string `json:"entity"`
	Field  string `json:"field"`
}

type Entity struct {
	Name       string          `json:"name"`
	Table      string          `json:"table"`
	PrimaryKey PrimaryKey      `json:"primary_key"`
	Subject    ability.Subject `json:"subject,omitempty"`
	Route      string          `json:"route,omitempty"` // URL segment when served by the generic handler
	Parent     *ParentRef      `json:"parent,omitempty"`
	Fields     []Field         `json:"fields"`
	// UniqueTogether lists composite unique indexes.
	UniqueTogether [][]string `json:"unique_together,omitempty"`
	Rules          []*Rule    `json:"rules,omitempty"`
}

type PrimaryKey struct {
	Field     string `json:"field"`
	Type      string `json:"type"` // bigint, uuid, string
	Generated bool   `json:"generated"`
}

// Exposed reports whether the entity is served by the generic CRUD handler.
func (e *Entity) Exposed() bool {
	return e.Route != ""
}

// GetField returns a pointer to the field with the given name, or nil.
func (e *Entity) GetField(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the entity has a field with the given name.
func (e *Entity) HasField(name string) bool {
	return e.GetField(name) != nil
}

// FieldNames returns all field names.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// VisibleColumns returns the columns safe to return to clients.
func (e *Entity) VisibleColumns() []string {
	var names []string
	for _, f := range e.Fields {
		if !f.Hidden {
			names = append(names, f.Name)
		}
	}
	return names
}

// BoolFields returns the names of boolean fields (SQLite stores them as integers).
func (e *Entity) BoolFields() []string {
	var names []string
	for _, f := range e.Fields {
		if f.Type == "boolean" {
			names = append(names, f.Name)
		}
	}
	return names
}

// WritableFields returns fields that can be set by the client.
// Excludes auto-generated PKs, auto-timestamp and hidden fields.
func (e *Entity) WritableFields() []Field {
	var fields []Field
	for _, f := range e.Fields {
		if f.Name == e.PrimaryKey.Field && e.PrimaryKey.Generated {
			continue
		}
		if f.IsAuto() || f.Hidden {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// UpdatableFields returns fields that can be set on UPDATE.
// Excludes the PK, the parent key and auto fields.
func (e *Entity) UpdatableFields() []Field {
	var fields []Field
	for _, f := range e.Fields {
		if f.Name == e.PrimaryKey.Field || f.IsAuto() || f.Hidden {
			continue
		}
		if e.Parent != nil && f.Name == e.Parent.Field {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}
