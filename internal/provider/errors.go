package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnknownProvider indicates the requested provider is not registered.
var ErrUnknownProvider = errors.New("unknown provider")

// ErrDuplicateProvider indicates an attempt to register the same name twice.
var ErrDuplicateProvider = errors.New("provider already registered")

// ErrUnsupportedOperation indicates the provider cannot fulfill the requested action.
// It is terminal: retrying the same call can never succeed.
var ErrUnsupportedOperation = errors.New("unsupported provider operation")

// ErrConfiguration marks every ConfigurationError.
var ErrConfiguration = errors.New("provider configuration error")

// ErrMalformedResponse indicates a vendor response did not match its schema.
var ErrMalformedResponse = errors.New("unrecognised provider response")

// ErrInvalidCredentials matches VendorCallErrors caused by a bad or missing API key.
var ErrInvalidCredentials = errors.New("invalid or missing api key")

// ErrQuotaExceeded matches VendorCallErrors caused by quota or rate limits.
var ErrQuotaExceeded = errors.New("provider quota exceeded")

// ConfigurationError reports a missing or placeholder credential.
type ConfigurationError struct {
	Provider string
	EnvKey   string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.EnvKey == "" {
		return fmt.Sprintf("%s configuration error: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s configuration error: %s (set %s)", e.Provider, e.Reason, e.EnvKey)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// VendorErrorKind classifies a failed vendor call.
type VendorErrorKind int

const (
	KindUnknown VendorErrorKind = iota
	KindInvalidCredentials
	KindQuotaExceeded
	KindTransport
)

func (k VendorErrorKind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindTransport:
		return "transport"
	default:
		return "vendor_error"
	}
}

// VendorCallError wraps a network, auth or quota failure from a vendor API.
// The original error stays reachable through Unwrap.
type VendorCallError struct {
	Provider   string
	StatusCode int
	Kind       VendorErrorKind
	Message    string
	EnvKey     string
	Err        error
}

func (e *VendorCallError) Error() string {
	var hint string
	switch e.Kind {
	case KindInvalidCredentials:
		hint = fmt.Sprintf("%s API key is invalid or not set", e.Provider)
		if e.EnvKey != "" {
			hint += "; check " + e.EnvKey
		}
	case KindQuotaExceeded:
		hint = fmt.Sprintf("%s API quota exceeded; check your usage limits", e.Provider)
	}

	detail := e.Message
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	if e.StatusCode > 0 {
		detail = fmt.Sprintf("status %d: %s", e.StatusCode, detail)
	}

	if hint != "" {
		return fmt.Sprintf("%s (%s)", hint, detail)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, detail)
}

func (e *VendorCallError) Unwrap() error {
	return e.Err
}

// Is matches ErrInvalidCredentials and ErrQuotaExceeded by kind.
func (e *VendorCallError) Is(target error) bool {
	switch target {
	case ErrInvalidCredentials:
		return e.Kind == KindInvalidCredentials
	case ErrQuotaExceeded:
		return e.Kind == KindQuotaExceeded
	}
	return false
}

// NewVendorCallError builds a classified error from an upstream status and message.
func NewVendorCallError(provider, envKey string, status int, message string) *VendorCallError {
	message = strings.TrimSpace(message)
	return &VendorCallError{
		Provider:   provider,
		StatusCode: status,
		Kind:       ClassifyVendorError(status, message),
		Message:    message,
		EnvKey:     envKey,
		Err:        errors.New(message),
	}
}

// NewTransportError wraps a failure that happened before any response arrived.
func NewTransportError(provider string, err error) *VendorCallError {
	return &VendorCallError{
		Provider: provider,
		Kind:     KindTransport,
		Err:      err,
	}
}

var (
	credentialMarkers = []string{"api key", "api_key", "apikey", "unauthorized", "unauthenticated", "authentication", "permission denied"}
	quotaMarkers      = []string{"quota", "rate limit", "rate_limit", "resource_exhausted", "resource has been exhausted", "too many requests"}
)

// ClassifyVendorError pattern-matches the status and vendor error text.
func ClassifyVendorError(status int, message string) VendorErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindInvalidCredentials
	case http.StatusTooManyRequests:
		return KindQuotaExceeded
	}

	lower := strings.ToLower(message)
	for _, marker := range quotaMarkers {
		if strings.Contains(lower, marker) {
			return KindQuotaExceeded
		}
	}
	for _, marker := range credentialMarkers {
		if strings.Contains(lower, marker) {
			return KindInvalidCredentials
		}
	}
	return KindUnknown
}
