// Package errors provides structured error types with helpful suggestions.
// Each error carries a type classification, the affected game (when there is
// one), a message, a suggestion for fixing the issue and an optional
// alternative. The batch runner uses the type to decide whether a failure only
// aborts the current game or the whole run.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorType categorizes the type of error
type ErrorType int

const (
	// LocatorMiss means no save path could be resolved for a game
	LocatorMiss ErrorType = iota
	// ArchiveError indicates packing or unpacking a save directory failed
	ArchiveError
	// DownloadError indicates fetching a cloud blob failed
	DownloadError
	// RemoteCallError covers network, auth and quota failures of the remote store
	RemoteCallError
	// ManifestParseError means the manifest on disk could not be decoded
	ManifestParseError
	// ManifestWriteError means the manifest could not be persisted
	ManifestWriteError
	// RestoreError indicates a restore failed after the local save was moved aside
	RestoreError
	// ConfigError indicates a configuration issue
	ConfigError
	// PermissionError indicates a file permission issue
	PermissionError
	// NotFoundError indicates a file or directory was not found
	NotFoundError
	// UnknownError is a catch-all for unexpected errors
	UnknownError
)

func (t ErrorType) String() string {
	switch t {
	case LocatorMiss:
		return "locator miss"
	case ArchiveError:
		return "archive error"
	case DownloadError:
		return "download error"
	case RemoteCallError:
		return "remote call error"
	case ManifestParseError:
		return "manifest parse error"
	case ManifestWriteError:
		return "manifest write error"
	case RestoreError:
		return "restore error"
	case ConfigError:
		return "config error"
	case PermissionError:
		return "permission error"
	case NotFoundError:
		return "not found"
	default:
		return "unknown error"
	}
}

// SaveError represents an error with context and suggestions
type SaveError struct {
	Type        ErrorType
	Message     string
	Game        string
	Suggestion  string
	Alternative string
	Cause       error
	FilePath    string
}

// Error implements the error interface
func (e *SaveError) Error() string {
	msg := e.Message
	if e.Game != "" {
		msg = fmt.Sprintf("%s: %s", e.Game, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *SaveError) Unwrap() error {
	return e.Cause
}

// New creates a new SaveError
func New(errType ErrorType, message string) *SaveError {
	return &SaveError{
		Type:    errType,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *SaveError {
	return &SaveError{
		Type:    errType,
		Message: message,
		Cause:   err,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *SaveError) WithSuggestion(suggestion string) *SaveError {
	e.Suggestion = suggestion
	return e
}

// WithAlternative adds an alternative solution to the error
func (e *SaveError) WithAlternative(alternative string) *SaveError {
	e.Alternative = alternative
	return e
}

// WithFilePath adds a file path to the error
func (e *SaveError) WithFilePath(path string) *SaveError {
	e.FilePath = path
	return e
}

// WithGame names the game the error belongs to
func (e *SaveError) WithGame(game string) *SaveError {
	e.Game = game
	return e
}

// DetectErrorType attempts to detect the error type from a generic error
func DetectErrorType(err error) ErrorType {
	if err == nil {
		return UnknownError
	}

	var se *SaveError
	if stderrors.As(err, &se) {
		return se.Type
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "permission denied") || strings.Contains(errStr, "access denied") {
		return PermissionError
	}
	if strings.Contains(errStr, "no such file") || strings.Contains(errStr, "does not exist") {
		return NotFoundError
	}
	if strings.Contains(errStr, "network") || strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "quota") {
		return RemoteCallError
	}
	if strings.Contains(errStr, "config") || strings.Contains(errStr, "yaml") {
		return ConfigError
	}

	return UnknownError
}

// WrapWithDetection wraps an error and attempts to detect its type
func WrapWithDetection(err error, message string) *SaveError {
	errType := DetectErrorType(err)
	saveErr := Wrap(err, errType, message)

	switch errType {
	case PermissionError:
		saveErr.WithSuggestion("Check file permissions using 'ls -la'").
			WithAlternative("Run with appropriate permissions or remove the game with 'savehaven remove'")
	case NotFoundError:
		saveErr.WithSuggestion("Verify the save directory exists").
			WithAlternative("Point the game at the right directory with 'savehaven add'")
	case RemoteCallError:
		saveErr.WithSuggestion("Check your internet connection and cloud credentials").
			WithAlternative("Run 'savehaven sync' again, finished games are skipped")
	case ConfigError:
		saveErr.WithSuggestion("Check your savehaven config.yaml").
			WithAlternative("Run 'savehaven init' to regenerate the default configuration")
	}

	return saveErr
}

// NewLocatorMiss reports a game whose save directory could not be resolved
func NewLocatorMiss(game string) *SaveError {
	return &SaveError{
		Type:        LocatorMiss,
		Message:     "save location not found",
		Game:        game,
		Suggestion:  fmt.Sprintf("Run: savehaven add %q <path>", game),
		Alternative: "The game is skipped until a path is known",
	}
}

// NewArchiveError creates an archive error for a save directory
func NewArchiveError(path string, cause error) *SaveError {
	return &SaveError{
		Type:        ArchiveError,
		Message:     fmt.Sprintf("failed to archive %s", path),
		Suggestion:  "Verify the save directory exists and is not empty",
		Alternative: "Remove the game from the manifest with 'savehaven remove'",
		Cause:       cause,
		FilePath:    path,
	}
}

// NewDownloadError creates a download error for a cloud file
func NewDownloadError(fileID string, cause error) *SaveError {
	return &SaveError{
		Type:        DownloadError,
		Message:     fmt.Sprintf("failed to download %s", fileID),
		Suggestion:  "Check your internet connection and try again",
		Alternative: "Local save data was not touched",
		Cause:       cause,
	}
}

// NewRemoteCallError creates a remote store error
func NewRemoteCallError(operation string, cause error) *SaveError {
	return &SaveError{
		Type:        RemoteCallError,
		Message:     fmt.Sprintf("remote %s failed", operation),
		Suggestion:  "Check your internet connection and cloud credentials",
		Alternative: "Run 'savehaven sync' again, the game will be re-evaluated",
		Cause:       cause,
	}
}

// NewManifestParseError reports an unreadable manifest
func NewManifestParseError(path string, cause error) *SaveError {
	return &SaveError{
		Type:        ManifestParseError,
		Message:     fmt.Sprintf("manifest %s is corrupt, starting from an empty one", path),
		Suggestion:  "Existing cloud copies will surface as conflicts on the next sync",
		Cause:       cause,
		FilePath:    path,
	}
}

// NewManifestWriteError reports a manifest that could not be saved. state is
// the in-memory manifest so the operator can recover it by hand.
func NewManifestWriteError(path, state string, cause error) *SaveError {
	return &SaveError{
		Type:        ManifestWriteError,
		Message:     fmt.Sprintf("failed to write manifest %s", path),
		Suggestion:  fmt.Sprintf("Free disk space or fix permissions, then save this state to %s:\n%s", path, state),
		Alternative: "Run 'savehaven sync' again, uploaded games will be re-evaluated",
		Cause:       cause,
		FilePath:    path,
	}
}

// NewRestoreError reports a restore that failed after the save was moved aside
func NewRestoreError(game, backupPath string, cause error) *SaveError {
	return &SaveError{
		Type:        RestoreError,
		Message:     "restore failed after moving the local save aside",
		Game:        game,
		Suggestion:  fmt.Sprintf("Your previous save is kept at %s", backupPath),
		Alternative: "Run 'savehaven recover' to put it back",
		Cause:       cause,
		FilePath:    backupPath,
	}
}

// NewPermissionError creates a permission error with helpful suggestions
func NewPermissionError(path string, cause error) *SaveError {
	return &SaveError{
		Type:        PermissionError,
		Message:     fmt.Sprintf("Permission denied accessing: %s", path),
		Suggestion:  fmt.Sprintf("Run: chmod u+rw %s", path),
		Alternative: "Or remove the game with 'savehaven remove'",
		Cause:       cause,
		FilePath:    path,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(path string, cause error) *SaveError {
	return &SaveError{
		Type:        NotFoundError,
		Message:     fmt.Sprintf("File or directory not found: %s", path),
		Suggestion:  "Verify the path exists",
		Alternative: "Update the game with 'savehaven add'",
		Cause:       cause,
		FilePath:    path,
	}
}

// NewConfigError creates a configuration error
func NewConfigError(field string, cause error) *SaveError {
	return &SaveError{
		Type:        ConfigError,
		Message:     fmt.Sprintf("Configuration error in field: %s", field),
		Suggestion:  "Check your savehaven config.yaml",
		Alternative: "Run 'savehaven init' to regenerate default configuration",
		Cause:       cause,
	}
}

func isType(err error, t ErrorType) bool {
	var se *SaveError
	if stderrors.As(err, &se) {
		return se.Type == t
	}
	return false
}

// IsLocatorMiss checks if an error is a locator miss
func IsLocatorMiss(err error) bool { return isType(err, LocatorMiss) }

// IsArchiveError checks if an error is an archive error
func IsArchiveError(err error) bool { return isType(err, ArchiveError) }

// IsDownloadError checks if an error is a download error
func IsDownloadError(err error) bool { return isType(err, DownloadError) }

// IsRemoteCallError checks if an error is a remote store error
func IsRemoteCallError(err error) bool { return isType(err, RemoteCallError) }

// IsManifestWriteError checks if an error is a manifest write error
func IsManifestWriteError(err error) bool { return isType(err, ManifestWriteError) }

// IsRestoreError checks if an error is a restore error
func IsRestoreError(err error) bool { return isType(err, RestoreError) }

// IsFatal reports whether an error must stop the whole run rather than just
// the current game.
func IsFatal(err error) bool {
	return isType(err, ManifestWriteError) || isType(err, ConfigError)
}

// IsRecoverable checks if an error only affects the current game
func IsRecoverable(err error) bool {
	return err != nil && !IsFatal(err)
}
