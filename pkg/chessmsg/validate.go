package chessmsg

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the struct tags of an inbound payload.
func Validate(v any) error {
	return validate.Struct(v)
}

type staticErr string

func (e staticErr) Error() string { return string(e) }

// Errors
var (
	ErrMissingType = staticErr("frame has no type")
	ErrUnknownType = staticErr("unknown message type")
)
