package errors

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorWireShape(t *testing.T) {
	e := Validation("Missing required fields")

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))

	assert.Equal(t, "Missing required fields", body["error"])
	// status code must not leak into the body
	_, present := body["StatusCode"]
	assert.False(t, present)
}

func TestTrialAlreadyUsed(t *testing.T) {
	e := TrialAlreadyUsed([]string{"monthly", "yearly"})

	assert.Equal(t, http.StatusConflict, e.StatusCode)
	assert.Equal(t, "TRIAL_ALREADY_USED", e.Code)
	assert.Equal(t, []string{"monthly", "yearly"}, e.AllowedPlans)
	assert.EqualError(t, e, "Trial already used")
}

func TestOTPInvalidCode(t *testing.T) {
	e := OTPInvalidCode("Invalid OTP. 3 attempts left.", 3)

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))

	assert.Equal(t, false, body["verified"])
	assert.Equal(t, float64(3), body["attempts_left"])
}

func TestStatusHelpers(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, NotFound("License not found").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, Unauthorized("Invalid user").StatusCode)
	assert.Equal(t, http.StatusConflict, Conflict("OTP already sent. Please wait.").StatusCode)
	assert.Equal(t, http.StatusInternalServerError, Internal("").StatusCode)
	assert.Equal(t, "Server error", Internal("").Message)
}
