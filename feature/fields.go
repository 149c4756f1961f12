package feature

// FieldType is the declared type of an attribute column.
type FieldType int

const (
	String FieldType = iota
	Integer
	Real
	Bool
	Date
)

func (t FieldType) String() string {
	switch t {
	case String:
		return "string"
	case Integer:
		return "integer"
	case Real:
		return "real"
	case Bool:
		return "bool"
	case Date:
		return "date"
	default:
		return "unknown"
	}
}

// Numeric reports whether values of this type are summarized numerically.
func (t FieldType) Numeric() bool {
	return t == Integer || t == Real
}

// Field describes one attribute column.
type Field struct {
	Name       string
	Type       FieldType
	PrimaryKey bool
}

// Fields is an ordered attribute schema.
type Fields []Field

// IndexOf returns the position of the named field, or -1.
func (fs Fields) IndexOf(name string) int {
	for i, f := range fs {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Names returns the field names in order.
func (fs Fields) Names() []string {
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = f.Name
	}
	return names
}

// PrimaryKeys returns the positions of all primary key fields.
func (fs Fields) PrimaryKeys() []int {
	var idx []int
	for i, f := range fs {
		if f.PrimaryKey {
			idx = append(idx, i)
		}
	}
	return idx
}
