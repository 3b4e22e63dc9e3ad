package handlers

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/sjperalta/schoolfees-api/internal/models"
)

var translator ut.Translator

// Gin binds with go-playground/validator; register English messages, JSON
// field names and the payment method rule on its engine.
func init() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	english := en.New()
	translator, _ = ut.New(english, english).GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, translator)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
		return models.IsValidPaymentMethod(strings.ToLower(fl.Field().String()))
	})
	_ = v.RegisterTranslation("payment_method", translator,
		func(ut.Translator) error { return nil },
		func(_ ut.Translator, fe validator.FieldError) string {
			return fe.Field() + " must be one of " + strings.Join(models.PaymentMethods, ", ")
		},
	)
}

// bindingErrors turns a ShouldBind error into per-field messages
func bindingErrors(err error) map[string]string {
	fields := make(map[string]string)

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if translator != nil {
				fields[fe.Field()] = fe.Translate(translator)
			} else {
				fields[fe.Field()] = fe.Error()
			}
		}
		return fields
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		fields[typeErr.Field] = "must be a " + typeErr.Type.String()
		return fields
	}

	fields["body"] = "malformed request body"
	return fields
}
