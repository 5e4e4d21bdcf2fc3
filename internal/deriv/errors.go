package deriv

import "errors"

// IsAuthError сообщает, что площадка отвергла токен
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return authErrorCodes[apiErr.Code]
}

// ErrorCode возвращает код ошибки площадки или пустую строку
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}
