package tracking

import (
	"errors"
	"fmt"
)

// Ошибки tracking client.
var (
	// ErrTracking — tracking server вернул ошибку.
	ErrTracking = errors.New("tracking server error")

	// ErrExperimentNotFound — эксперимент с таким именем не существует.
	ErrExperimentNotFound = errors.New("experiment not found")

	// ErrUnsupportedArtifactURI — схема artifact_uri run не поддерживается.
	ErrUnsupportedArtifactURI = errors.New("unsupported artifact uri")
)

// Коды ошибок MLflow REST API.
const (
	codeResourceDoesNotExist  = "RESOURCE_DOES_NOT_EXIST"
	codeResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"
)

// APIError — ошибка, которую вернул tracking server.
type APIError struct {
	StatusCode int
	Code       string `json:"error_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("tracking server: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("tracking server: HTTP %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap позволяет проверять errors.Is(err, ErrTracking).
func (e *APIError) Unwrap() error {
	return ErrTracking
}

// isCode проверяет код ошибки MLflow.
func isCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
