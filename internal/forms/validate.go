package forms

import (
	"errors"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/locales/de"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	de_translations "github.com/go-playground/validator/v10/translations/de"
)

// custom validation tags
const (
	notBlankTag    = "notblank"
	wholeNumberTag = "wholenumber"
)

// Number is a numeric form field. It keeps the raw input so an invalid
// value can be shown back to the user unchanged.
type Number struct {
	Raw   string
	Value int
	Valid bool
}

// ParseNumber parses raw as a whole number. Surrounding space is ignored.
func ParseNumber(raw string) Number {
	trimmed := strings.TrimSpace(raw)
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return Number{Raw: raw}
	}
	return Number{Raw: raw, Value: n, Valid: true}
}

// NumberOf returns a valid Number holding n.
func NumberOf(n int) Number {
	return Number{Raw: strconv.Itoa(n), Value: n, Valid: true}
}

func (n Number) String() string {
	if n.Valid && n.Raw == "" {
		return strconv.Itoa(n.Value)
	}
	return n.Raw
}

// Messages overrides validation messages. Keys are "<path>.<tag>" for one
// rule or "<path>" for every rule of a field.
type Messages map[string]string

// ValidationResult holds at most one message per field, keyed by dotted path
// (for example "address.zipCode").
type ValidationResult struct {
	Errors map[string]string
}

// Valid reports whether no field failed.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Get returns the message for path, or "".
func (r ValidationResult) Get(path string) string {
	return r.Errors[path]
}

// Fields returns the failing paths in sorted order.
func (r ValidationResult) Fields() []string {
	out := make([]string, 0, len(r.Errors))
	for path := range r.Errors {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Validator validates form drafts with German default messages.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// NewValidator builds a Validator. Drafts name their fields with `form` tags.
func NewValidator() *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())

	_de := de.New()
	uni := ut.New(_de, _de)
	translator, _ := uni.GetTranslator("de")
	_ = de_translations.RegisterDefaultTranslations(validate, translator)

	// Use form field names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// An unparsable Number yields nil, which fails the field's first rule.
	validate.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if n, ok := field.Interface().(Number); ok && n.Valid {
			return n.Value
		}
		return nil
	}, Number{})

	_ = validate.RegisterValidation(notBlankTag, notBlankValidation)
	// wholenumber never fails by itself. It only sees parsed numbers; for
	// unparsable input the type func above yields nil and validator reports
	// the first tag, so wholenumber must lead the Number's tag list.
	_ = validate.RegisterValidation(wholeNumberTag, func(validator.FieldLevel) bool { return true })

	registerFn := func(ut.Translator) error { return nil }
	for _, tag := range []string{notBlankTag, wholeNumberTag} {
		_ = validate.RegisterTranslation(tag, translator, registerFn, translateCustomValidationErrs)
	}

	return &Validator{validate: validate, translator: translator}
}

// Validate checks draft and resolves one message per failing field, using
// messages before the German defaults.
func (v *Validator) Validate(draft any, messages Messages) ValidationResult {
	result := ValidationResult{Errors: map[string]string{}}

	err := v.validate.Struct(draft)
	if err == nil {
		return result
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		result.Errors[""] = err.Error()
		return result
	}

	for _, fe := range fieldErrs {
		path := fieldPath(fe.Namespace())
		if _, seen := result.Errors[path]; seen {
			continue
		}
		result.Errors[path] = v.message(fe, path, messages)
	}
	return result
}

func (v *Validator) message(fe validator.FieldError, path string, messages Messages) string {
	if msg, ok := messages[path+"."+fe.Tag()]; ok {
		return msg
	}
	if msg, ok := messages[path]; ok {
		return msg
	}
	return fe.Translate(v.translator)
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	_, rest, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	return rest
}

func translateCustomValidationErrs(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case notBlankTag:
		return fe.Field() + " ist erforderlich"
	case wholeNumberTag:
		return fe.Field() + " muss eine ganze Zahl sein"
	default:
		return ""
	}
}

func notBlankValidation(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}
