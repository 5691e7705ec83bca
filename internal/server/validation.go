package server

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
)

var registerValidatorsOnce sync.Once

// registerValidators adds the booking tags to gin's validator engine.
func registerValidators() {
	registerValidatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			return jsonFieldName(field.Tag.Get("json"), field.Name)
		})
		_ = v.RegisterValidation("date_only", func(fl validator.FieldLevel) bool {
			_, err := bookingdomain.ParseDate(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("snowflake", func(fl validator.FieldLevel) bool {
			_, err := parseID(fl.Field().String())
			return err == nil
		})
	})
}

// bindJSON binds the body and turns validator failures into field errors.
func bindJSON(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			out := ValidationErrors{Errors: make([]ValidationError, 0, len(vErrs))}
			for _, fe := range vErrs {
				out.Errors = append(out.Errors, ValidationError{
					Field:   fe.Field(),
					Code:    fe.Tag(),
					Message: fieldMessage(fe),
				})
			}
			return &out
		}
		return invalidRequestError()
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "date_only":
		return fe.Field() + " must be a YYYY-MM-DD date"
	case "snowflake":
		return fe.Field() + " must be a valid id"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	default:
		return "invalid value"
	}
}

func jsonFieldName(tag, fallback string) string {
	name := strings.SplitN(tag, ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return fallback
	default:
		return name
	}
}

func parseID(value string) (snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, ErrInvalidRequest
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed <= 0 {
		return 0, ErrInvalidRequest
	}
	return parsed, nil
}
