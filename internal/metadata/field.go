package metadata

// Reference is a foreign key target. OnDelete is CASCADE, SET NULL or
// empty for the database default (restrict).
type Reference struct {
	Table    string `json:"table"`
	Column   string `json:"column"`
	OnDelete string `json:"on_delete,omitempty"`
}

type Field struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"` // string, text, int, bigint, float, boolean, timestamp, date
	Required   bool       `json:"required,omitempty"`
	Unique     bool       `json:"unique,omitempty"`
	Default    any        `json:"default,omitempty"`
	Nullable   bool       `json:"nullable,omitempty"`
	Enum       []string   `json:"enum,omitempty"`
	Auto       string     `json:"auto,omitempty"` // "create" or "update"
	Hidden     bool       `json:"hidden,omitempty"`
	References *Reference `json:"references,omitempty"`
}

// IsAuto returns true if the field is auto-managed by the engine.
func (f Field) IsAuto() bool {
	return f.Auto == "create" || f.Auto == "update"
}

// IsNumeric reports whether values of the field are numbers.
func (f Field) IsNumeric() bool {
	switch f.Type {
	case "int", "bigint", "decimal", "float":
		return true
	}
	return false
}

func ref(table string, onDelete string) *Reference {
	return &Reference{Table: table, Column: "id", OnDelete: onDelete}
}
