package service

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	pkgerrors "SkinCoach/pkg/errors"
	"SkinCoach/pkg/logger"
	"SkinCoach/pkg/profileapi"
)

// ValidationError 字段级校验失败，键为 json 字段名
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "validation failed: " + strings.Join(keys, ", ")
}

func (e *ValidationError) Unwrap() error {
	return pkgerrors.ValidationFailed
}

func (e *ValidationError) ErrorDetails() map[string]interface{} {
	fields := make(map[string]interface{}, len(e.Fields))
	for k, v := range e.Fields {
		fields[k] = v
	}
	return map[string]interface{}{"fields": fields}
}

func fieldError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// RemoteError 资料服务调用失败。
// 404/400/409 直接透出远端信息，其余（网络错误、5xx）统一为该操作的通用提示。
type RemoteError struct {
	Def    pkgerrors.Definition
	Cause  error
	Status int
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Def.Code, e.Cause)
}

func (e *RemoteError) Unwrap() []error {
	return []error{e.Def, e.Cause}
}

// remoteFailure 按状态码把客户端错误归类，generic 为该操作的通用错误
func remoteFailure(op string, err error, generic pkgerrors.Definition) error {
	status := profileapi.StatusOf(err)

	var apiErr *profileapi.APIError
	message := ""
	if errors.As(err, &apiErr) {
		message = apiErr.Message
	}

	def := generic
	switch status {
	case http.StatusNotFound:
		def = verbatim(pkgerrors.ProfileNotFound, message)
	case http.StatusBadRequest:
		def = verbatim(pkgerrors.ProfileRequestRejected, message)
	case http.StatusConflict:
		def = verbatim(pkgerrors.ProfileConflict, message)
	}

	logger.Logger.Warn("Profile API call failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("code", def.Code),
		zap.Error(err),
	)

	return &RemoteError{Def: def, Status: status, Cause: err}
}

func verbatim(def pkgerrors.Definition, message string) pkgerrors.Definition {
	if strings.TrimSpace(message) == "" {
		return def
	}
	return def.WithMessage(message)
}
