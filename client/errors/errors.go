// Package errors defines error types and utilities for the CrypticScore client SDK.
package errors

import (
	"errors"
	"fmt"

	sdkerrors "cosmossdk.io/errors"
)

// Codespace is the registration namespace for every client error.
const Codespace = "crypticscore"

// Common error codes for the CrypticScore client SDK
const (
	// Backend errors
	CodeConfiguration uint32 = 1001 + iota
	CodeSDKLoad
	CodeProviderUnavailable
	CodeNetworkUnreachable

	// Credential errors
	CodeCredentialUnavailable uint32 = 2001 + iota
	CodeSigningFailed
	CodeStorageFailed

	// Ledger errors
	CodeLedger uint32 = 3001 + iota
	CodeInvalidDimensions
	CodeInvalidScale
	CodeInvalidEndTime
	CodeAlreadyRated
	CodeDimensionMismatch
	CodeCampaignEnded
	CodeCampaignNotFound
	CodeUnauthorized

	// Decryption errors
	CodeDecryption uint32 = 4001 + iota
	CodeInvalidHandle

	// Configuration errors
	CodeInvalidConfig uint32 = 6001 + iota
	CodeMissingConfig
	CodeInvalidNetwork
)

var (
	// Backend errors
	ErrConfiguration       = sdkerrors.Register(Codespace, CodeConfiguration, "invalid encryption backend configuration")
	ErrSDKLoad             = sdkerrors.Register(Codespace, CodeSDKLoad, "failed to load relayer SDK")
	ErrProviderUnavailable = sdkerrors.Register(Codespace, CodeProviderUnavailable, "provider unavailable")
	ErrNetworkUnreachable  = sdkerrors.Register(Codespace, CodeNetworkUnreachable, "network unreachable")

	// Credential errors
	ErrCredentialUnavailable = sdkerrors.Register(Codespace, CodeCredentialUnavailable, "decryption credential unavailable")
	ErrSigningFailed         = sdkerrors.Register(Codespace, CodeSigningFailed, "signing failed")
	ErrStorageFailed         = sdkerrors.Register(Codespace, CodeStorageFailed, "credential storage failed")

	// Ledger errors
	ErrLedger            = sdkerrors.Register(Codespace, CodeLedger, "ledger call failed")
	ErrInvalidDimensions = sdkerrors.Register(Codespace, CodeInvalidDimensions, "invalid dimensions")
	ErrInvalidScale      = sdkerrors.Register(Codespace, CodeInvalidScale, "invalid scale")
	ErrInvalidEndTime    = sdkerrors.Register(Codespace, CodeInvalidEndTime, "invalid end time")
	ErrAlreadyRated      = sdkerrors.Register(Codespace, CodeAlreadyRated, "already rated")
	ErrDimensionMismatch = sdkerrors.Register(Codespace, CodeDimensionMismatch, "dimension count mismatch")
	ErrCampaignEnded     = sdkerrors.Register(Codespace, CodeCampaignEnded, "campaign already ended")
	ErrCampaignNotFound  = sdkerrors.Register(Codespace, CodeCampaignNotFound, "campaign not found")
	ErrUnauthorized      = sdkerrors.Register(Codespace, CodeUnauthorized, "unauthorized")

	// Decryption errors
	ErrDecryption    = sdkerrors.Register(Codespace, CodeDecryption, "user decryption failed")
	ErrInvalidHandle = sdkerrors.Register(Codespace, CodeInvalidHandle, "invalid ciphertext handle")

	// Configuration errors
	ErrInvalidConfig  = sdkerrors.Register(Codespace, CodeInvalidConfig, "invalid configuration")
	ErrMissingConfig  = sdkerrors.Register(Codespace, CodeMissingConfig, "missing required configuration")
	ErrInvalidNetwork = sdkerrors.Register(Codespace, CodeInvalidNetwork, "invalid network configuration")
)

// WrapError wraps an existing error with additional context and a client error code.
func WrapError(err error, sdkErr *sdkerrors.Error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)
	return sdkerrors.Wrapf(sdkErr, "%s: %v", msg, err)
}

// IsBackendError returns true if the error came from resolving or loading the encryption backend.
func IsBackendError(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrSDKLoad) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrNetworkUnreachable)
}

// IsCredentialError returns true if the error is related to decryption credentials.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrCredentialUnavailable) ||
		errors.Is(err, ErrSigningFailed) ||
		errors.Is(err, ErrStorageFailed)
}

// IsLedgerError returns true if the error is a ledger failure or a contract revert.
func IsLedgerError(err error) bool {
	return errors.Is(err, ErrLedger) || IsRevert(err)
}

// IsRevert returns true if the error maps to a named contract revert.
func IsRevert(err error) bool {
	return errors.Is(err, ErrInvalidDimensions) ||
		errors.Is(err, ErrInvalidScale) ||
		errors.Is(err, ErrInvalidEndTime) ||
		errors.Is(err, ErrAlreadyRated) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrCampaignEnded) ||
		errors.Is(err, ErrCampaignNotFound) ||
		errors.Is(err, ErrUnauthorized)
}

// IsDecryptionError returns true if the error is related to user decryption.
func IsDecryptionError(err error) bool {
	return errors.Is(err, ErrDecryption) || errors.Is(err, ErrInvalidHandle)
}

// IsConfigurationError returns true if the error is related to configuration.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrInvalidNetwork)
}

// GetErrorCode extracts the error code from a registered error.
// Returns 0 if the error is not a registered error.
func GetErrorCode(err error) uint32 {
	var sdkErr *sdkerrors.Error
	if errors.As(err, &sdkErr) {
		return sdkErr.ABCICode()
	}
	return 0
}

// RevertByName maps a contract custom error name to its registered error.
func RevertByName(name string) (*sdkerrors.Error, bool) {
	switch name {
	case "InvalidDimensions":
		return ErrInvalidDimensions, true
	case "InvalidScale":
		return ErrInvalidScale, true
	case "InvalidEndTime":
		return ErrInvalidEndTime, true
	case "AlreadyRated":
		return ErrAlreadyRated, true
	case "DimensionMismatch":
		return ErrDimensionMismatch, true
	case "ProjectAlreadyEnded":
		return ErrCampaignEnded, true
	case "ProjectNotFound":
		return ErrCampaignNotFound, true
	case "Unauthorized":
		return ErrUnauthorized, true
	}
	return nil, false
}

// NewConfigurationError creates a backend configuration error naming the offending field.
func NewConfigurationError(field, value string) error {
	return sdkerrors.Wrapf(ErrConfiguration, "%s: %q", field, value)
}

// NewSDKLoadError creates a relayer SDK load error with context.
func NewSDKLoadError(reason string, underlying error) error {
	if underlying == nil {
		return sdkerrors.Wrap(ErrSDKLoad, reason)
	}
	return sdkerrors.Wrapf(ErrSDKLoad, "%s: %v", reason, underlying)
}

// NewLedgerError creates a ledger error for the named contract method.
func NewLedgerError(method string, underlying error) error {
	return sdkerrors.Wrapf(ErrLedger, "%s: %v", method, underlying)
}
