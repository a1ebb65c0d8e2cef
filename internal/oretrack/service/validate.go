package service

import (
	"errors"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

var validate = validator.New()

// validationError converts validator output into a field -> tag map.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[lowerFirst(fe.Field())] = fe.Tag()
	}
	return &types.ValidationError{Fields: fields}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// normalizePage applies the default limit and validates the window.
func normalizePage(p types.Page) (types.Page, error) {
	if p.Limit == 0 {
		p.Limit = types.DefaultPageLimit
	}
	if err := validate.Struct(p); err != nil {
		return p, validationError(err)
	}
	return p, nil
}
