// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. When operators report an import problem, the code narrows the
// diagnosis without digging through logs.
//
// Categories:
//
//	DB001-DB099   database constraints and connectivity
//	VAL001-VAL099 roster validation (emails, roles, duplicates)
//	FILE001-FILE099 upload file handling
//	SYNC001-SYNC099 commit-time failures
//	RATE001       request throttling
//	ERR000        fallback for unmatched errors
//
// Patterns are matched case-insensitively with strings.Contains; the first
// match wins, so specific patterns come before general ones.
package roster

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// Database Errors (DB001-DB004)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A user with this email already exists",
			Action:  "Check your file for duplicate addresses",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "A user with this email already exists",
			Action:  "Check your file for duplicate addresses",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to reach the user database",
			Action:  "Please try again in a few moments",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB003",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "The roster was busy with a conflicting operation",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001-VAL004)
	// =========================================================================
	{
		pattern: "duplicate email",
		msg: UserMessage{
			Message: "The same email appears on more than one row",
			Action:  "Remove the duplicate rows and re-upload",
			Code:    "VAL001",
		},
	},
	{
		pattern: "malformed email",
		msg: UserMessage{
			Message: "A row contains an invalid email address",
			Action:  "Fix the address shown in the row error and re-upload",
			Code:    "VAL002",
		},
	},
	{
		pattern: "missing email",
		msg: UserMessage{
			Message: "A row is missing its email address",
			Action:  "Every row needs an email in the third column",
			Code:    "VAL003",
		},
	},
	{
		pattern: "unknown role",
		msg: UserMessage{
			Message: "The file names a role that does not exist",
			Action:  "Check the role columns against the configured roles",
			Code:    "VAL004",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE003)
	// =========================================================================
	{
		pattern: "file exceeds",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "A roster file should be small; verify you picked the right file",
			Code:    "FILE001",
		},
	},
	{
		pattern: "parse file",
		msg: UserMessage{
			Message: "File could not be parsed as CSV or TSV",
			Action:  "Ensure the file is comma- or tab-separated text",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV or TSV file to import",
			Code:    "FILE003",
		},
	},

	// =========================================================================
	// Sync Errors (SYNC001-SYNC003)
	// =========================================================================
	{
		pattern: "preview blocked",
		msg: UserMessage{
			Message: "The import has validation problems and cannot be committed",
			Action:  "Resolve the listed errors, then preview again",
			Code:    "SYNC001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "SYNC002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Check your connection and try again",
			Code:    "SYNC003",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000). Support
// staff should check application logs for the original technical error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. It
// searches the known patterns (case-insensitive) and returns the first
// match, or the ERR000 fallback.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether the error matches a specific known pattern
// rather than the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// SplitRowError splits a "Row N: reason" message into its row number and
// reason. ok is false when the message does not carry a row prefix.
func SplitRowError(msg string) (row int, reason string, ok bool) {
	rest, found := strings.CutPrefix(msg, "Row ")
	if !found {
		return 0, "", false
	}
	num, reason, found := strings.Cut(rest, ": ")
	if !found {
		return 0, "", false
	}
	n := 0
	for _, c := range num {
		if c < '0' || c > '9' {
			return 0, "", false
		}
		n = n*10 + int(c-'0')
	}
	if n == 0 {
		return 0, "", false
	}
	return n, reason, true
}
