// Package clierror provides structured errors for keyplanectl output with
// codes, exit codes, and remediation hints.
package clierror

import (
	"encoding/json"
	"fmt"
)

// Exit codes for keyplanectl.
const (
	ExitSuccess  = 0 // Operation completed successfully
	ExitGeneral  = 1 // Unknown/unhandled error
	ExitAuth     = 2 // Authentication or handshake failure
	ExitProtocol = 3 // Malformed challenge or envelope
	ExitNotFound = 4 // Resource doesn't exist
)

// Error codes for programmatic handling.
const (
	CodeAuthFailed         = "AUTH_FAILED"
	CodeRetryExhausted     = "RETRY_EXHAUSTED"
	CodeChallengeMalformed = "CHALLENGE_MALFORMED"
	CodeNoChallenge        = "NO_CHALLENGE"
	CodeKeyGeneration      = "KEY_GENERATION_FAILED"
	CodeConnectionFailed   = "CONNECTION_FAILED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// CLIError is a structured error for CLI output.
type CLIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Hint      string `json:"hint,omitempty"`
	Retryable bool   `json:"retryable"`
	ExitCode  int    `json:"-"` // Not serialized, used for os.Exit
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	return e.Message
}

// AuthFailed creates an error for a failed authentication handshake.
func AuthFailed(endpoint string, err error) *CLIError {
	return &CLIError{
		Code:      CodeAuthFailed,
		Message:   fmt.Sprintf("authentication against '%s' failed: %s", endpoint, err),
		Hint:      "Check the token provider credentials and the endpoint address",
		Retryable: false,
		ExitCode:  ExitAuth,
	}
}

// RetryExhausted creates an error for a handshake that stayed unauthorized
// after its single bounded retry.
func RetryExhausted(endpoint string) *CLIError {
	return &CLIError{
		Code:      CodeRetryExhausted,
		Message:   fmt.Sprintf("'%s' rejected the retried request; not retrying again", endpoint),
		Hint:      "The token may not be valid for this resource or scope",
		Retryable: false,
		ExitCode:  ExitAuth,
	}
}

// ChallengeMalformed creates an error for an unparsable challenge.
func ChallengeMalformed(endpoint string, err error) *CLIError {
	return &CLIError{
		Code:      CodeChallengeMalformed,
		Message:   fmt.Sprintf("'%s' sent an unparsable WWW-Authenticate challenge: %s", endpoint, err),
		Hint:      "The endpoint may not speak the challenge protocol",
		Retryable: false,
		ExitCode:  ExitProtocol,
	}
}

// NoChallenge creates an error when a probe got no 401 challenge back.
func NoChallenge(endpoint string, status int) *CLIError {
	return &CLIError{
		Code:      CodeNoChallenge,
		Message:   fmt.Sprintf("'%s' answered the probe with status %d, not a challenge", endpoint, status),
		Hint:      "Anonymous access may be enabled, or the path may not be protected",
		Retryable: false,
		ExitCode:  ExitProtocol,
	}
}

// KeyGeneration creates an error for a failed key generation.
func KeyGeneration(err error) *CLIError {
	return &CLIError{
		Code:      CodeKeyGeneration,
		Message:   fmt.Sprintf("key generation failed: %s", err),
		Retryable: true,
		ExitCode:  ExitGeneral,
	}
}

// ConnectionFailed creates an error for connection failures.
func ConnectionFailed(target string, err error) *CLIError {
	return &CLIError{
		Code:      CodeConnectionFailed,
		Message:   fmt.Sprintf("failed to connect to '%s': %s", target, err),
		Hint:      "Check network connectivity and the target address",
		Retryable: true,
		ExitCode:  ExitGeneral,
	}
}

// InternalError creates an error for unexpected internal errors.
func InternalError(err error) *CLIError {
	msg := "an unexpected internal error occurred"
	if err != nil {
		msg = fmt.Sprintf("internal error: %s", err)
	}
	return &CLIError{
		Code:     CodeInternalError,
		Message:  msg,
		ExitCode: ExitGeneral,
	}
}

// FormatError renders the error for the given output format: "json" for
// machine output, anything else for a human-readable block.
func FormatError(err *CLIError, outputFormat string) string {
	if outputFormat == "json" {
		data, jsonErr := json.MarshalIndent(err, "", "  ")
		if jsonErr != nil {
			return fmt.Sprintf(`{"code":%q,"message":%q}`, err.Code, err.Message)
		}
		return string(data)
	}

	out := fmt.Sprintf("Error [%s]: %s", err.Code, err.Message)
	if err.Hint != "" {
		out += fmt.Sprintf("\nHint: %s", err.Hint)
	}
	return out
}
