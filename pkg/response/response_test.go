package response

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"SkinCoach/pkg/errors"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", errors.ValidationFailed, http.StatusUnprocessableEntity, "VALIDATION_FAILED"},
		{"not found wrapped", fmt.Errorf("load: %w", errors.WizardSessionNotFound), http.StatusNotFound, "WIZARD_SESSION_NOT_FOUND"},
		{"remote verbatim", errors.ProfileConflict.WithMessage("Email already in use"), http.StatusConflict, "PROFILE_CONFLICT"},
		{"remote generic", errors.ProfileUpdateFailed, http.StatusBadGateway, "PROFILE_UPDATE_FAILED"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, detail := Resolve(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, detail.Code)
		})
	}
}

func TestResolve_KeepsMessageAndDetails(t *testing.T) {
	err := errors.SubscriptionUnconfirmed.WithDetails(map[string]interface{}{"retryable": true})

	status, detail := Resolve(err)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, errors.SubscriptionUnconfirmed.Message, detail.Message)
	assert.Equal(t, true, detail.Details["retryable"])

	_, detail = Resolve(fmt.Errorf("secret dsn leaked"))
	assert.Equal(t, "Internal error", detail.Message)
}
