// Package iotype implements the canonical I/O type model shared by package
// descriptions (CWL-like CommandLineTool/Workflow I/O), WPS 1.0/2.0 I/O, and
// OGC API - Processes I/O, plus the conversions between the three dialects.
package iotype

import "fmt"

// Kind discriminates the tagged union Io.
type Kind int

const (
	KindLiteral Kind = iota
	KindComplex
	KindBoundingBox
)

func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindComplex:
		return "complex"
	case KindBoundingBox:
		return "boundingbox"
	default:
		return "unknown"
	}
}

// MaxOccursUnbounded is the sentinel used internally for "no upper bound"
// (array/"*" maxOccurs). wpsToAPI renders it as the literal string
// "unbounded" per spec.
const MaxOccursUnbounded = -1

// Base literal type names recognized by the package I/O model.
const (
	TypeString  = "string"
	TypeInt     = "int"
	TypeLong    = "long"
	TypeFloat   = "float"
	TypeDouble  = "double"
	TypeBoolean = "boolean"
	TypeNull    = "null"
	TypeAny     = "Any"
	TypeFile    = "File"
	TypeDir     = "Directory"
	TypeArray   = "array"
	TypeEnum    = "enum"
)

var baseLiteralTypes = map[string]bool{
	TypeString:  true,
	TypeInt:     true,
	TypeLong:    true,
	TypeFloat:   true,
	TypeDouble:  true,
	TypeBoolean: true,
	TypeNull:    true,
	TypeAny:     true,
}

var complexTypes = map[string]bool{
	TypeFile: true,
	TypeDir:  true,
}

// Format describes one supported media type for a complex I/O entry.
type Format struct {
	MimeType string `json:"mimeType" yaml:"mimeType"`
	Schema   string `json:"schema,omitempty" yaml:"schema,omitempty"`
	Encoding string `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	Default  bool   `json:"default,omitempty" yaml:"default,omitempty"`
}

// PackageIO is the package-dialect (CWL-derived) description of one input
// or output.
type PackageIO struct {
	ID        string      `json:"id" yaml:"id" validate:"required"`
	Type      string      `json:"type" yaml:"type" validate:"required"`
	ItemsType string      `json:"itemsType,omitempty" yaml:"itemsType,omitempty"`
	Label     string      `json:"label,omitempty" yaml:"label,omitempty"`
	Doc       string      `json:"doc,omitempty" yaml:"doc,omitempty"`
	Default   interface{} `json:"default,omitempty" yaml:"default,omitempty"`
	Formats   []Format    `json:"format,omitempty" yaml:"format,omitempty"`
	Symbols   []string    `json:"symbols,omitempty" yaml:"symbols,omitempty"`
	IsArray   bool        `json:"-" yaml:"-"`
}

// IsComplex reports whether this I/O entry's base type is File/Directory.
func (p PackageIO) IsComplex() bool {
	return complexTypes[baseType(p)]
}

// IsEnum reports whether this I/O entry is an enum (has symbols).
func (p PackageIO) IsEnum() bool {
	return p.Type == TypeEnum || len(p.Symbols) > 0
}

func baseType(p PackageIO) string {
	if p.IsArray {
		return p.ItemsType
	}
	return p.Type
}

// Validate checks that the declared type is recognized and that, for
// literals/enums, Default (if present) is a member of Symbols.
func (p PackageIO) Validate() error {
	bt := baseType(p)
	if p.Type != TypeArray && p.Type != TypeEnum && !baseLiteralTypes[bt] && !complexTypes[bt] {
		return fmt.Errorf("%w: field %q has type %q", ErrPackageType, p.ID, p.Type)
	}
	if p.IsEnum() && p.Default != nil {
		defStr, ok := p.Default.(string)
		if ok {
			found := false
			for _, sym := range p.Symbols {
				if sym == defStr {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("%w: field %q default %q not in %v", ErrInvalidDefault, p.ID, defStr, p.Symbols)
			}
		}
	}
	return nil
}

// Io is the tagged-union canonical representation used internally by Merge
// and the cross-dialect converters.
type Io struct {
	Kind          Kind
	ID            string
	Title         string
	Abstract      string
	Keywords      []string
	Metadata      map[string]string
	DataType      string
	AllowedValues []string
	Mode          string
	Formats       []Format
	MinOccurs     int
	MaxOccurs     int // MaxOccursUnbounded for no bound
	BBoxCRS       []string
}
