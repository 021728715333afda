package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Unwrap_PreservesCause(t *testing.T) {
	// Given: an underlying error
	cause := errors.New("disk I/O error")

	// When: wrapping it as a store error
	err := New(ErrCodeStore, "failed to upsert entity", cause)

	// Then: the cause is reachable through the chain
	require.NotNil(t, err)
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestError_Error_FormatsCodeAndMessage(t *testing.T) {
	tests := []struct {
		code     string
		message  string
		expected string
	}{
		{ErrCodeTextTooLong, "text exceeds 8192 characters", "[ERR_402_TEXT_TOO_LONG] text exceeds 8192 characters"},
		{ErrCodeModelNotFound, "model missing", "[ERR_201_MODEL_NOT_FOUND] model missing"},
		{ErrCodeNotInitialized, "provider not loaded", "[ERR_502_NOT_INITIALIZED] provider not loaded"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, New(tt.code, tt.message, nil).Error())
		})
	}
}

func TestError_Is_MatchesSentinelByCode(t *testing.T) {
	// Given: an error built with the not-initialized code, wrapped twice
	err := fmt.Errorf("generate: %w", New(ErrCodeNotInitialized, "no backend loaded", nil))

	// Then: it matches its sentinel and no other
	assert.True(t, errors.Is(err, ErrNotInitialized))
	assert.False(t, errors.Is(err, ErrModelNotFound))
}

func TestError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code string
		want Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeModelNotFound, CategoryIO},
		{ErrCodeStore, CategoryIO},
		{ErrCodeNetworkTimeout, CategoryNetwork},
		{ErrCodeTextTooLong, CategoryValidation},
		{ErrCodeQueryEmpty, CategoryValidation},
		{ErrCodeInference, CategoryEngine},
		{"bogus", CategoryEngine},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, categoryFromCode(tt.code))
		})
	}
}

func TestError_SeverityAndRetryable(t *testing.T) {
	assert.Equal(t, SeverityFatal, New(ErrCodeMemory, "oom", nil).Severity)
	assert.True(t, IsFatal(New(ErrCodeCorruptStore, "corrupt", nil)))

	netErr := New(ErrCodeNetworkTimeout, "timeout", nil)
	assert.True(t, netErr.Retryable)
	assert.Equal(t, SeverityWarning, netErr.Severity)
	assert.True(t, IsRetryable(fmt.Errorf("embed: %w", netErr)))

	assert.False(t, IsRetryable(New(ErrCodeInference, "bad", nil)))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, Wrap(ErrCodeStore, nil))
	})

	t.Run("plain error takes code", func(t *testing.T) {
		err := Wrap(ErrCodeStore, errors.New("database is locked"))
		assert.Equal(t, ErrCodeStore, err.Code)
		assert.Equal(t, "database is locked", err.Message)
	})

	t.Run("existing Error keeps its code", func(t *testing.T) {
		inner := New(ErrCodeTextTooLong, "too long", nil)
		err := Wrap(ErrCodeInference, fmt.Errorf("batch: %w", inner))
		assert.Equal(t, ErrCodeTextTooLong, err.Code)
	})
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeNoEmbedding, GetCode(fmt.Errorf("x: %w", ErrNoEmbedding)))
	assert.Equal(t, "", GetCode(errors.New("plain")))
}

func TestError_WithDetailAndSuggestion(t *testing.T) {
	err := New(ErrCodeModelNotFound, "model file missing", nil).
		WithDetail("path", "/models/minilm.gguf").
		WithSuggestion("run 'amanfind model pull'")

	assert.Equal(t, "/models/minilm.gguf", err.Details["path"])
	assert.Equal(t, "run 'amanfind model pull'", err.Suggestion)
}
