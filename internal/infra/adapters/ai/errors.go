package ai

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v2"
	"google.golang.org/genai"

	"veritheo-bot/internal/domain/ports/adapter"
)

func transientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// classify wraps provider errors that are worth retrying in adapter.ErrTransient.
func classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	var gerr genai.APIError
	if errors.As(err, &gerr) && transientStatus(gerr.Code) {
		return fmt.Errorf("%s: %w: %w", provider, adapter.ErrTransient, err)
	}
	var oerr *openai.Error
	if errors.As(err, &oerr) && transientStatus(oerr.StatusCode) {
		return fmt.Errorf("%s: %w: %w", provider, adapter.ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", provider, err)
}
