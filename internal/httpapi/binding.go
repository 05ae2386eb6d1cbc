package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var registerTagNameOnce sync.Once

// useJSONFieldNames переключает имена полей в ошибках валидатора gin на json-теги,
// чтобы ключи совпадали с тем, что прислал клиент.
func useJSONFieldNames() {
	registerTagNameOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return field.Name
		})
	})
}

// bindJSON разбирает тело запроса; ошибки разбора и валидации приводятся к ValidationError.
func bindJSON(c *gin.Context, dst any) error {
	return bindingError(c.ShouldBindJSON(dst))
}

// bindQuery разбирает query-параметры. Значение, которое не приводится к типу
// поля, считается ошибкой ввода, а не молча заменяется значением по умолчанию.
func bindQuery(c *gin.Context, dst any) error {
	err := c.ShouldBindQuery(dst)
	var fieldErrs validator.ValidationErrors
	if err != nil && !errors.As(err, &fieldErrs) {
		return domain.NewValidationError("query", "Malformed query parameters")
	}
	return bindingError(err)
}

func bindingError(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		vErr := &domain.ValidationError{}
		for _, fe := range fieldErrs {
			vErr.Add(fieldPath(fe), fieldMessage(fe))
		}
		return vErr
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return domain.NewValidationError(typeErr.Field, fmt.Sprintf("must be a %s", typeErr.Type.String()))
	}
	return domain.NewValidationError("body", "Malformed request body")
}

// fieldPath отрезает имя корневой структуры: "registerPayload.email" -> "email".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.IndexByte(ns, '.'); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	label := capitalize(fe.Field())
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", label, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", label, fe.Param())
	default:
		return label + " is invalid"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
