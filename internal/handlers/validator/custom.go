package validator

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// course ids become the first path element of channel names
var courseIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

func courseIDValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	return courseIDRegex.MatchString(val)
}

func segmentStatusValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	switch val {
	case "complete", "failed":
		return true
	default:
		return false
	}
}
