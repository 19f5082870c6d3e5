package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/interfaces/http/dto"
)

// SetupValidator makes gin's binding validator report json (or form) field names
func SetupValidator() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			return name
		})
	}
}

// BindError classifies a ShouldBind failure
func BindError(err error) *dto.ErrorInfo {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]shared.FieldViolation, 0, len(verrs))
		for _, e := range verrs {
			fields = append(fields, shared.FieldViolation{Field: e.Field(), Rule: e.Tag(), Param: e.Param()})
		}
		return &dto.ErrorInfo{Code: dto.ErrCodeValidation, Message: "Request validation failed", Details: fields}
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &dto.ErrorInfo{Code: dto.ErrCodeRequestTooLarge, Message: "Request body exceeds maximum allowed size"}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &dto.ErrorInfo{Code: dto.ErrCodeInvalidJSON, Message: "Request body is not valid JSON"}
	}
	return &dto.ErrorInfo{Code: dto.ErrCodeBadRequest, Message: err.Error()}
}

// HandleBindError answers a ShouldBind failure with the standard envelope
func HandleBindError(c *gin.Context, err error) {
	info := BindError(err)
	info.RequestID = GetRequestID(c)
	c.AbortWithStatusJSON(dto.GetHTTPStatus(info.Code), dto.Response{Error: info})
}
