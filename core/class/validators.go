package class

import (
	"regexp"
	"strconv"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/alama/core"
)

var (
	schoolYearTag   = "schoolyear"
	schoolYearText  = "school year must look like 2024-2025"
	schoolYearRegex = regexp.MustCompile(`^(\d{4})-(\d{4})$`)

	termTag  = "term"
	termText = "term must be one of 1ST, 2ND or SUMMER"
)

// InitValidators registers the class validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(schoolYearTag, schoolYearValidation)
	core.RegisterCustomTranslation(validate, translator, schoolYearTag, schoolYearText)

	_ = validate.RegisterValidation(termTag, termValidation)
	core.RegisterCustomTranslation(validate, translator, termTag, termText)
}

// schoolYearValidation accepts consecutive years, eg. 2024-2025.
func schoolYearValidation(fl validator.FieldLevel) bool {
	m := schoolYearRegex.FindStringSubmatch(fl.Field().String())
	if m == nil {
		return false
	}
	from, _ := strconv.Atoi(m[1])
	to, _ := strconv.Atoi(m[2])
	return to == from+1
}

func termValidation(fl validator.FieldLevel) bool {
	return core.StringIn(fl.Field().String(), Terms...)
}

func toUpper(s string) string { return strings.ToUpper(s) }
