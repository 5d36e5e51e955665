package validator

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	clockTimePattern  = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d:[0-5]\d$`)
	ticketCodePattern = regexp.MustCompile(`^[A-Z]+$`)
	ticketPattern     = regexp.MustCompile(`^[A-Z]+-\d+$`)
	phonePattern      = regexp.MustCompile(`^(\+?(\d{1,3}))?[-.\s]?\(?\d{1,4}\)?[-.\s]?\d{1,4}[-.\s]?\d{1,9}$`)
)

// Validator provides validation functionality
type Validator interface {
	Validate(interface{}) error
	ValidateVar(field string, value interface{}, tag string) error
}

type structValidator struct {
	v *validator.Validate
}

// New returns a validator that knows the queue-specific tags:
// clocktime (HH:MM:SS), ticket (PREFIX-NUMBER) and phone.
func New() Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("clocktime", func(fl validator.FieldLevel) bool {
		return clockTimePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("ticket", func(fl validator.FieldLevel) bool {
		return ticketPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return &structValidator{v: v}
}

func (s *structValidator) Validate(obj interface{}) error {
	if err := s.v.Struct(obj); err != nil {
		return humanize(err)
	}
	return nil
}

func (s *structValidator) ValidateVar(field string, value interface{}, tag string) error {
	if err := s.v.Var(value, tag); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			return fmt.Errorf("%s %s", field, describe(verrs[0]))
		}
		return err
	}
	return nil
}

// IsTicketCode reports whether code can prefix a ticket number that
// IsTicketNumber accepts.
func IsTicketCode(code string) bool {
	return ticketCodePattern.MatchString(code)
}

// IsTicketNumber reports whether s looks like PREFIX-NUMBER.
func IsTicketNumber(s string) bool {
	return ticketPattern.MatchString(s)
}

func humanize(err error) error {
	var verrs validator.ValidationErrors
	if !asValidationErrors(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s %s", fe.Field(), describe(fe)))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s", fe.Param())
	case "clocktime":
		return "must be a time in HH:MM:SS format"
	case "ticket":
		return "must be a ticket number like CLINIC-101"
	case "phone":
		return "must be a valid phone number"
	case "required_without":
		return fmt.Sprintf("is required when %s is empty", fe.Param())
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}
