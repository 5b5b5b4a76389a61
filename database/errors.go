package database

import (
	"errors"
	"net/url"

	"go.mongodb.org/mongo-driver/mongo"
)

// MongoDB server error codes this module reacts to.
const (
	CodeUnauthorized                = 13
	CodeAlreadyInitialized          = 23
	CodeNamespaceNotFound           = 26
	CodeCommandNotFound             = 59
	CodeIndexAlreadyExists          = 68
	CodeIndexOptionsConflict        = 85
	CodeIndexKeySpecsConflict       = 86
	CodeIndexBuildAlreadyInProgress = 276
)

var transientCodes = []int{
	6,     // HostUnreachable
	7,     // HostNotFound
	89,    // NetworkTimeout
	91,    // ShutdownInProgress
	189,   // PrimarySteppedDown
	262,   // ExceededTimeLimit
	9001,  // SocketException
	10107, // NotWritablePrimary
	11600, // InterruptedAtShutdown
	11602, // InterruptedDueToReplStateChange
	13435, // NotPrimaryNoSecondaryOk
	13436, // NotPrimaryOrSecondary
}

// HasCode reports whether err carries any of the given server error codes.
func HasCode(err error, codes ...int) bool {
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return false
	}
	for _, c := range codes {
		if se.HasErrorCode(c) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err is a connectivity failure worth retrying.
// Validation, duplicate-key and other logical errors are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		if se.HasErrorLabel("RetryableWriteError") || se.HasErrorLabel("TransientTransactionError") {
			return true
		}
		return HasCode(err, transientCodes...)
	}
	return false
}

// RedactURI hides the password of a connection string for logging.
func RedactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
