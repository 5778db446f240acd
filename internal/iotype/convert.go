package iotype

import (
	"fmt"
	"net/http"
	"time"
)

// PackageToWPS converts one package I/O entry into its WPS dialect
// equivalent. Array types get MaxOccursUnbounded; enums become a literal
// with AllowedValues and Mode=SIMPLE; File/Directory become complex I/O and
// are given a default text/plain format when none was declared so that
// downstream validation never sees an empty format list. Unknown types are
// a hard error.
func PackageToWPS(p PackageIO, dir Direction) (WPSIO, error) {
	if err := p.Validate(); err != nil {
		return WPSIO{}, err
	}

	out := WPSIO{
		Identifier: p.ID,
		Title:      p.Label,
		Abstract:   p.Doc,
		MinOccurs:  1,
		MaxOccurs:  1,
	}

	if p.IsArray {
		out.MaxOccurs = MaxOccursUnbounded
	}

	switch {
	case p.IsEnum():
		out.Kind = KindLiteral
		out.DataType = TypeString
		out.AllowedValues = append([]string(nil), p.Symbols...)
		out.Mode = ModeSimple
	case p.IsComplex():
		out.Kind = KindComplex
		out.DataType = baseType(p)
		formats := p.Formats
		if len(formats) == 0 {
			formats = []Format{{MimeType: "text/plain", Default: true}}
		}
		out.SupportedFmts = formats
		out.Mode = ModeComplex
	case baseLiteralTypes[baseType(p)]:
		out.Kind = KindLiteral
		out.DataType = baseType(p)
		out.Mode = ModeSimple
	default:
		return WPSIO{}, fmt.Errorf("%w: field %q has type %q", ErrPackageType, p.ID, p.Type)
	}

	return out, nil
}

// WPSToIo lifts a WPS I/O description into the canonical tagged union used
// by Merge and by process.Process storage: the two share every field
// Process.Inputs/Outputs needs, renamed to the canonical names.
func WPSToIo(w WPSIO) Io {
	return Io{
		Kind:          w.Kind,
		ID:            w.Identifier,
		Title:         w.Title,
		Abstract:      w.Abstract,
		DataType:      w.DataType,
		AllowedValues: append([]string(nil), w.AllowedValues...),
		Mode:          w.Mode,
		Formats:       append([]Format(nil), w.SupportedFmts...),
		MinOccurs:     w.MinOccurs,
		MaxOccurs:     w.MaxOccurs,
		BBoxCRS:       append([]string(nil), w.BBoxCRS...),
	}
}

// IoToWPS lowers a canonical Io entry back into the WPS dialect, the
// inverse of WPSToIo, so a merged/stored Io can still be projected into
// the OGC API - Processes JSON dialect via WPSToAPI.
func IoToWPS(io Io) WPSIO {
	return WPSIO{
		Kind:          io.Kind,
		Identifier:    io.ID,
		Title:         io.Title,
		Abstract:      io.Abstract,
		DataType:      io.DataType,
		MinOccurs:     io.MinOccurs,
		MaxOccurs:     io.MaxOccurs,
		AllowedValues: append([]string(nil), io.AllowedValues...),
		SupportedFmts: append([]Format(nil), io.Formats...),
		Mode:          io.Mode,
		BBoxCRS:       append([]string(nil), io.BBoxCRS...),
	}
}

// WPSToAPI converts a WPS I/O description into the OGC API - Processes JSON
// dialect: identifier->id, supportedFormats->formats, minOccurs/maxOccurs
// carried through, MaxOccursUnbounded rendered as the literal "unbounded".
func WPSToAPI(w WPSIO) APIIO {
	out := APIIO{
		ID:        w.Identifier,
		Title:     w.Title,
		Abstract:  w.Abstract,
		MinOccurs: w.MinOccurs,
	}

	if w.MaxOccurs == MaxOccursUnbounded {
		out.MaxOccurs = "unbounded"
	} else {
		out.MaxOccurs = fmt.Sprintf("%d", w.MaxOccurs)
	}

	switch w.Kind {
	case KindComplex:
		for _, f := range w.SupportedFmts {
			out.Formats = append(out.Formats, APIFmt{
				MimeType: f.MimeType,
				Schema:   f.Schema,
				Encoding: f.Encoding,
				Default:  f.Default,
			})
		}
	case KindLiteral:
		out.Schema = APISchema{Type: "string"}
		if len(w.AllowedValues) > 0 {
			out.Schema.Enum = append([]string(nil), w.AllowedValues...)
		} else if w.DataType != "" {
			out.Schema.Type = w.DataType
		}
	case KindBoundingBox:
		out.Schema = APISchema{Type: "object"}
	}

	return out
}

// Merge reconciles WPS-declared I/O against CWL-derived I/O:
//   - CWL-derived entries absent from wpsDeclared are added as-is.
//   - wpsDeclared entries absent from cwlDerived are dropped.
//   - For matched IDs, the CWL-derived Kind/DataType wins; user-provided
//     Title/Abstract/Metadata/Keywords/AllowedValues/Formats from the
//     WPS-declared entry override only when present.
//
// Merge(A, A) is the identity on I/O lists (property 8.5).
func Merge(wpsDeclared, cwlDerived []Io) []Io {
	declared := make(map[string]Io, len(wpsDeclared))
	for _, io := range wpsDeclared {
		declared[io.ID] = io
	}

	result := make([]Io, 0, len(cwlDerived))
	for _, cwl := range cwlDerived {
		merged := cwl
		if user, ok := declared[cwl.ID]; ok {
			if user.Title != "" {
				merged.Title = user.Title
			}
			if user.Abstract != "" {
				merged.Abstract = user.Abstract
			}
			if len(user.Keywords) > 0 {
				merged.Keywords = user.Keywords
			}
			if len(user.Metadata) > 0 {
				merged.Metadata = user.Metadata
			}
			if len(user.AllowedValues) > 0 && user.DataType == cwl.DataType {
				merged.AllowedValues = user.AllowedValues
			}
			if len(user.Formats) > 0 && cwl.Kind == KindComplex {
				merged.Formats = user.Formats
			}
		}
		result = append(result, merged)
	}
	return result
}

// ianaFormatBase is the base URL queried by MimeToFormatIRI before falling
// back to the built-in EDAM mapping. Overridable in tests.
var ianaFormatBase = "https://www.iana.org/assignments/media-types/"

// edamMapping covers scientific formats the IANA registry does not carry
// entries for.
var edamMapping = map[string]string{
	"application/x-hdf5":     "http://edamontology.org/format_3590",
	"application/x-netcdf":   "http://edamontology.org/format_3650",
	"application/json":       "http://edamontology.org/format_3464",
	"text/plain":             "http://edamontology.org/format_1964",
}

var formatIRIClient = &http.Client{Timeout: 5 * time.Second}

// MimeToFormatIRI resolves a MIME type to a format IRI: first it attempts
// the IANA media-types registry; on HTTP 200 it returns that reference;
// otherwise it consults the built-in EDAM mapping.
func MimeToFormatIRI(mime string) (string, error) {
	candidate := ianaFormatBase + mime
	resp, err := formatIRIClient.Head(candidate)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return candidate, nil
		}
	}

	if iri, ok := edamMapping[mime]; ok {
		return iri, nil
	}

	return "", fmt.Errorf("no format IRI known for mime type %q", mime)
}
