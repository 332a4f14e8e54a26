// Package validator wraps go-playground/validator with english error messages.
// Field names in messages are taken from the "configKey" tag, nested keys are joined by a dot.
package validator

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslation "github.com/go-playground/validator/v10/translations/en"

	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

const keyTag = "configKey"

type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

type Rule struct {
	Tag          string
	Func         validator.FuncCtx
	ErrorMessage string
}

func New(rules ...Rule) *Validator {
	v := &Validator{validate: validator.New()}

	enLocale := en.New()
	translator, found := ut.New(enLocale, enLocale).GetTranslator("en")
	if !found {
		panic(errors.New("en translator was not found"))
	}
	if err := enTranslation.RegisterDefaultTranslations(v.validate, translator); err != nil {
		panic(errors.Errorf("translator was not registered: %w", err))
	}
	v.translator = translator

	v.validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		if name, _, _ := strings.Cut(field.Tag.Get(keyTag), ","); name != "" && name != "-" {
			return name
		}
		return field.Name
	})

	for _, rule := range rules {
		v.mustRegisterRule(rule)
	}

	return v
}

// Validate a struct or a slice of structs.
func (v *Validator) Validate(ctx context.Context, value any) error {
	return v.ValidateCtx(ctx, value, "dive", "")
}

// ValidateCtx validates the value, keys in error messages are prefixed by the namespace.
func (v *Validator) ValidateCtx(ctx context.Context, value any, tag string, namespace string) error {
	err := v.validate.VarCtx(ctx, value, tag)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	out := errors.NewMultiError()
	for _, e := range validationErrs {
		key := fieldKey(namespace, e.Namespace())
		msg := e.Translate(v.translator)
		if strings.HasPrefix(msg, e.Field()) {
			msg = fmt.Sprintf(`"%s"%s`, key, strings.TrimPrefix(msg, e.Field()))
		} else {
			msg = fmt.Sprintf(`"%s": %s`, key, msg)
		}
		out.Append(errors.New(msg))
	}
	return out.ErrorOrNil()
}

func (v *Validator) mustRegisterRule(rule Rule) {
	if err := v.validate.RegisterValidationCtx(rule.Tag, rule.Func); err != nil {
		panic(err)
	}
	if rule.ErrorMessage == "" {
		return
	}
	err := v.validate.RegisterTranslation(
		rule.Tag,
		v.translator,
		func(ut ut.Translator) error {
			return ut.Add(rule.Tag, "{0} "+rule.ErrorMessage, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(rule.Tag, fe.Field())
			return t
		},
	)
	if err != nil {
		panic(err)
	}
}

// fieldKey removes the root struct name from the validator namespace.
// The root name is "" when a slice is validated directly with the "dive" tag.
func fieldKey(prefix string, ns string) string {
	if _, after, found := strings.Cut(ns, "."); found && !strings.HasPrefix(ns, "[") {
		ns = after
	}
	if prefix == "" {
		return ns
	}
	return prefix + "." + ns
}
