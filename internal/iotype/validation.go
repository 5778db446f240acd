package iotype

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(validatePackageIO, PackageIO{})
	return v
}

// validatePackageIO is the validator.v10 struct-level hook enforcing that a
// declared default is a member of its allowedValues/symbols set (S5: a bad
// default must fail deployment before the job is ever created).
func validatePackageIO(sl validator.StructLevel) {
	p := sl.Current().Interface().(PackageIO)
	if !p.IsEnum() || p.Default == nil {
		return
	}
	defStr, ok := p.Default.(string)
	if !ok {
		return
	}
	for _, sym := range p.Symbols {
		if sym == defStr {
			return
		}
	}
	sl.ReportError(p.Default, "Default", "Default", "allowedvalue", "")
}

// ValidateStruct runs the struct-tag validations (required fields) and the
// default-vs-allowedValues conformance check, returning ErrInvalidDefault
// (wrapped with the field path) on a non-conforming default.
func ValidateStruct(p PackageIO) error {
	if err := structValidator.Struct(p); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				if fe.Tag() == "allowedvalue" {
					return fmt.Errorf("%w: field %q default %v not in %v", ErrInvalidDefault, p.ID, p.Default, p.Symbols)
				}
			}
		}
		return fmt.Errorf("%w: %v", ErrPackageType, err)
	}
	return p.Validate()
}
