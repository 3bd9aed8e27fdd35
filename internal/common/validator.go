package common

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// GenericEchoValidator runs struct tag validation on bound request bodies
type GenericEchoValidator struct {
	Validator *validator.Validate
}

func (gv *GenericEchoValidator) Validate(i interface{}) error {
	if gv.Validator == nil {
		gv.Validator = validator.New()
	}
	err := gv.Validator.Struct(i)
	if err == nil {
		return nil
	}
	if fieldErrors, ok := err.(validator.ValidationErrors); ok {
		return echo.NewHTTPError(http.StatusBadRequest, describe(fieldErrors))
	}
	return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("received invalid request body: %v", err))
}

// describe turns field errors into one readable line, e.g.
// "invalid request body: name is required; quality must be lte 100"
func describe(fieldErrors validator.ValidationErrors) string {
	problems := make([]string, 0, len(fieldErrors))
	for _, fieldError := range fieldErrors {
		field := lowerFirst(fieldError.Field())
		if fieldError.Tag() == "required" {
			problems = append(problems, field+" is required")
			continue
		}
		problem := fmt.Sprintf("%s must be %s", field, fieldError.Tag())
		if fieldError.Param() != "" {
			problem += " " + fieldError.Param()
		}
		problems = append(problems, problem)
	}
	return "invalid request body: " + strings.Join(problems, "; ")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
