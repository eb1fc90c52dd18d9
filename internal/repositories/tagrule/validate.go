package tagrule

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/rules"
)

var tagKeyPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("tagkey", func(fl validator.FieldLevel) bool {
		return tagKeyPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("rulefield", func(fl validator.FieldLevel) bool {
		return isRuleField(fl.Field().String())
	})
	v.RegisterStructValidation(validateCondition, models.Condition{})
	return v
}

// isRuleField accepts catalog keys and "data.<path>" extension paths.
func isRuleField(field string) bool {
	if _, ok := rules.LookupField(field); ok {
		return true
	}
	path, ok := strings.CutPrefix(strings.TrimSpace(field), "data.")
	if !ok || path == "" {
		return false
	}
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return false
		}
	}
	return true
}

// validateCondition rejects operators that are not valid for the field's type
// and operands that cannot be parsed as that type.
func validateCondition(sl validator.StructLevel) {
	c := sl.Current().Interface().(models.Condition)
	if !isRuleField(c.Field) {
		return
	}
	if err := rules.ValidateCondition(c); err != nil {
		sl.ReportError(c.Operator, "Operator", "operator", "condition", err.Error())
	}
}

func validationError(input any, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "condition":
			msgs = append(msgs, fmt.Sprintf("invalid condition at %s: %s", fe.Namespace(), fe.Param()))
			continue
		case "rulefield":
			msgs = append(msgs, fmt.Sprintf("unknown rule field '%v' at %s; expected one of %s or data.<path>",
				fe.Value(), fe.Namespace(), strings.Join(rules.CatalogKeys(), ", ")))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("failed %T validation for field '%s': rule '%s' expected '%s', got '%v'", input, fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
