package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/UkralStul/forum-service/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError переводит доменную ошибку в HTTP-статус.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	status := http.StatusInternalServerError
	msg := "internal server error"

	switch {
	case errors.As(err, &verrs):
		status, msg = http.StatusBadRequest, validationMessage(verrs)
	case errors.Is(err, domain.ErrUsernameTaken):
		status, msg = http.StatusConflict, domain.ErrUsernameTaken.Error()
	case errors.Is(err, domain.ErrValidation):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrInvalidCredentials):
		status, msg = http.StatusUnauthorized, domain.ErrInvalidCredentials.Error()
	case errors.Is(err, domain.ErrUnauthenticated):
		status, msg = http.StatusUnauthorized, domain.ErrUnauthenticated.Error()
	case errors.Is(err, domain.ErrConflict):
		w.Header().Set("Retry-After", "1")
		status, msg = http.StatusServiceUnavailable, domain.ErrConflict.Error()
	case errors.Is(err, domain.ErrStorageTimeout):
		status, msg = http.StatusGatewayTimeout, domain.ErrStorageTimeout.Error()
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path, "status", status,
			"error", err, "request_id", middleware.GetReqID(r.Context()))
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func validationMessage(verrs validator.ValidationErrors) string {
	fe := verrs[0]
	field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s: %s", field, domain.ErrEmptyField)
	case "max":
		return fmt.Sprintf("%s: too long (max %s)", field, fe.Param())
	}
	return fmt.Sprintf("%s: invalid value", field)
}

// formDecoder - запрос, который можно заполнить из формы.
type formDecoder interface {
	fromForm(get func(names ...string) string)
}

// decode читает JSON или форму (urlencoded, multipart) и валидирует структуру.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst formDecoder) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			return fmt.Errorf("%w: malformed JSON body", domain.ErrValidation)
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return fmt.Errorf("%w: malformed form body", domain.ErrValidation)
		}
		dst.fromForm(formGetter(r))
	default:
		if err := r.ParseForm(); err != nil {
			return fmt.Errorf("%w: malformed form body", domain.ErrValidation)
		}
		dst.fromForm(formGetter(r))
	}
	return s.validate.Struct(dst)
}

// formGetter возвращает первое непустое значение среди перечисленных имен полей.
func formGetter(r *http.Request) func(names ...string) string {
	return func(names ...string) string {
		for _, n := range names {
			if v := r.FormValue(n); v != "" {
				return v
			}
		}
		return ""
	}
}
