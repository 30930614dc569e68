// Package status classifies worker process exits and scrubs failure
// messages before they leave the coordinator through the API, the event
// stream, or the webhook notifier.
package status

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// FailureType coarse classification of a worker failure.
type FailureType string

const (
	FailureTypeCrash     FailureType = "CRASH"     // non-zero exit code
	FailureTypeSignal    FailureType = "SIGNAL"    // terminated by a signal
	FailureTypeOOM       FailureType = "OOM"       // killed by the out-of-memory reaper
	FailureTypeStartup   FailureType = "STARTUP"   // died before registering
	FailureTypeHeartbeat FailureType = "HEARTBEAT" // stopped responding to probes
	FailureTypeUnknown   FailureType = "UNKNOWN"
)

// WorkerFailureInfo one worker failure as reported to the outside.
type WorkerFailureInfo struct {
	Type         FailureType `json:"type"`
	Reason       string      `json:"reason"`
	Message      string      `json:"message"`
	SanitizedMsg string      `json:"sanitized_msg,omitempty"`
	OccurredAt   time.Time   `json:"occurred_at"`
}

// SanitizedError user-facing rendering of a failure reason.
type SanitizedError struct {
	UserMessage string `json:"userMessage"`
	Suggestion  string `json:"suggestion"`
	ErrorCode   string `json:"errorCode"`
}

type sensitivePattern struct {
	pattern     *regexp.Regexp
	replacement string
	description string
}

// Sanitizer maps exit reasons to user-friendly errors and redacts
// host-internal details (paths, credentials, private addresses) from
// raw failure messages.
type Sanitizer struct {
	errorMappings     map[FailureType]map[string]SanitizedError
	sensitivePatterns []*sensitivePattern
}

// CrashErrorMappings default mappings for non-zero exit codes.
var CrashErrorMappings = map[string]SanitizedError{
	"exit_1": {
		UserMessage: "Worker exited with a generic error",
		Suggestion:  "Check the worker logs for the failing operation",
		ErrorCode:   "CRASH_GENERIC",
	},
	"exit_2": {
		UserMessage: "Worker exited due to a usage error",
		Suggestion:  "Check the worker spawn arguments and configuration",
		ErrorCode:   "CRASH_USAGE",
	},
	"exit_126": {
		UserMessage: "Worker binary could not be executed",
		Suggestion:  "Check the executable permissions of the coordinator binary",
		ErrorCode:   "CRASH_NOT_EXECUTABLE",
	},
	"exit_127": {
		UserMessage: "Worker binary was not found",
		Suggestion:  "Check that the coordinator binary path is still valid",
		ErrorCode:   "CRASH_NOT_FOUND",
	},
	"default": {
		UserMessage: "Worker process crashed",
		Suggestion:  "Check the worker logs for details",
		ErrorCode:   "CRASH",
	},
}

// SignalErrorMappings default mappings for signal terminations.
var SignalErrorMappings = map[string]SanitizedError{
	"SIGKILL": {
		UserMessage: "Worker was forcibly killed",
		Suggestion:  "Check for memory pressure or an external kill of the process",
		ErrorCode:   "SIGNAL_KILLED",
	},
	"SIGSEGV": {
		UserMessage: "Worker crashed with a segmentation fault",
		Suggestion:  "Check the worker logs and report the crash",
		ErrorCode:   "SIGNAL_SEGFAULT",
	},
	"SIGABRT": {
		UserMessage: "Worker aborted",
		Suggestion:  "Check the worker logs for the abort cause",
		ErrorCode:   "SIGNAL_ABORT",
	},
	"SIGTERM": {
		UserMessage: "Worker was terminated",
		Suggestion:  "No action needed if a shutdown or replacement was in progress",
		ErrorCode:   "SIGNAL_TERMINATED",
	},
	"SIGBUS": {
		UserMessage: "Worker crashed with a bus error",
		Suggestion:  "Check the worker logs and report the crash",
		ErrorCode:   "SIGNAL_BUS",
	},
	"default": {
		UserMessage: "Worker was terminated by a signal",
		Suggestion:  "Check the worker logs and the host's system log",
		ErrorCode:   "SIGNAL",
	},
}

// OOMErrorMappings default mappings for out-of-memory kills.
var OOMErrorMappings = map[string]SanitizedError{
	"oom_killed": {
		UserMessage: "Worker was killed after running out of memory",
		Suggestion:  "Lower the worker count or raise the host's memory",
		ErrorCode:   "OOM_KILLED",
	},
	"default": {
		UserMessage: "Worker ran out of memory",
		Suggestion:  "Lower the worker count or raise the host's memory",
		ErrorCode:   "OOM",
	},
}

// StartupErrorMappings default mappings for workers that never came online.
var StartupErrorMappings = map[string]SanitizedError{
	"spawn_failed": {
		UserMessage: "Worker process could not be started",
		Suggestion:  "Check the coordinator logs for the spawn error",
		ErrorCode:   "STARTUP_SPAWN_FAILED",
	},
	"dial_timeout": {
		UserMessage: "Worker never connected back to the coordinator",
		Suggestion:  "Check that the coordinator's listen address is reachable from workers",
		ErrorCode:   "STARTUP_DIAL_TIMEOUT",
	},
	"registration_timeout": {
		UserMessage: "Worker connected but never registered",
		Suggestion:  "Check the worker logs for an error during startup",
		ErrorCode:   "STARTUP_REGISTRATION_TIMEOUT",
	},
	"default": {
		UserMessage: "Worker failed to start",
		Suggestion:  "Check the coordinator and worker logs",
		ErrorCode:   "STARTUP_FAILED",
	},
}

// HeartbeatErrorMappings default mappings for unresponsive workers.
var HeartbeatErrorMappings = map[string]SanitizedError{
	"heartbeat_missed": {
		UserMessage: "Worker stopped sending heartbeats",
		Suggestion:  "The worker may be blocked or overloaded; it will be restarted",
		ErrorCode:   "HEARTBEAT_MISSED",
	},
	"ping_timeout": {
		UserMessage: "Worker did not answer a health probe in time",
		Suggestion:  "The worker may be blocked or overloaded; it will be restarted",
		ErrorCode:   "HEARTBEAT_PING_TIMEOUT",
	},
	"default": {
		UserMessage: "Worker became unresponsive",
		Suggestion:  "The worker will be restarted automatically",
		ErrorCode:   "HEARTBEAT_LOST",
	},
}

// UnknownErrorMappings fallback mappings.
var UnknownErrorMappings = map[string]SanitizedError{
	"default": {
		UserMessage: "Unknown worker failure",
		Suggestion:  "Check the coordinator logs for details",
		ErrorCode:   "UNKNOWN_ERROR",
	},
}

// NewSanitizer creates a Sanitizer with the default mappings and patterns.
func NewSanitizer() *Sanitizer {
	s := &Sanitizer{
		errorMappings:     make(map[FailureType]map[string]SanitizedError),
		sensitivePatterns: buildDefaultSensitivePatterns(),
	}

	s.errorMappings[FailureTypeCrash] = CrashErrorMappings
	s.errorMappings[FailureTypeSignal] = SignalErrorMappings
	s.errorMappings[FailureTypeOOM] = OOMErrorMappings
	s.errorMappings[FailureTypeStartup] = StartupErrorMappings
	s.errorMappings[FailureTypeHeartbeat] = HeartbeatErrorMappings
	s.errorMappings[FailureTypeUnknown] = UnknownErrorMappings

	return s
}

// ClassifyExit maps a process exit to a failure type and reason. A
// non-empty signal name wins over the exit code; the conventional
// 128+signal codes are folded back into their signal.
func ClassifyExit(exitCode int, signal string) (FailureType, string) {
	if signal != "" {
		sig := strings.ToUpper(signal)
		if !strings.HasPrefix(sig, "SIG") {
			sig = "SIG" + sig
		}
		return FailureTypeSignal, sig
	}

	switch exitCode {
	case 0:
		return FailureTypeUnknown, "clean_exit"
	case 134:
		return FailureTypeSignal, "SIGABRT"
	case 137:
		return FailureTypeSignal, "SIGKILL"
	case 139:
		return FailureTypeSignal, "SIGSEGV"
	default:
		return FailureTypeCrash, fmt.Sprintf("exit_%d", exitCode)
	}
}

// buildDefaultSensitivePatterns covers the host-internal details a raw
// failure message can leak: filesystem paths, credentials embedded in
// DSNs or env assignments, private addresses, and resource ids.
func buildDefaultSensitivePatterns() []*sensitivePattern {
	return []*sensitivePattern{
		// Env-style credential assignments: PASSWORD=..., api_key=... .
		{
			pattern:     regexp.MustCompile(`(?i)\b([a-z0-9_-]*(?:password|passwd|secret|token|api[_-]?key))=[^\s\[]+`),
			replacement: "$1=[redacted]",
			description: "credential assignment",
		},
		// Bearer tokens in relayed HTTP errors.
		{
			pattern:     regexp.MustCompile(`(?i)\bbearer\s+[a-zA-Z0-9._~+/-]+=*`),
			replacement: "bearer [redacted]",
			description: "bearer token",
		},
		// MySQL DSNs: user:pass@tcp(host:port)/db .
		{
			pattern:     regexp.MustCompile(`\b[a-zA-Z0-9_]+:[^@\s]+@tcp\([^)]*\)[^\s]*`),
			replacement: "[mysql-dsn]",
			description: "mysql DSN",
		},
		// Redis URLs carrying a password.
		{
			pattern:     regexp.MustCompile(`\bredis://[^@\s]+@[^\s]+`),
			replacement: "[redis-url]",
			description: "redis URL with credentials",
		},
		// Generic URLs with inline credentials.
		{
			pattern:     regexp.MustCompile(`https?://[^:/\s]+:[^@\s]+@[a-zA-Z0-9][-a-zA-Z0-9_.]*`),
			replacement: "[url]",
			description: "URL with credentials",
		},
		// Home directories leak usernames.
		{
			pattern:     regexp.MustCompile(`(?:/home|/Users)/[a-zA-Z0-9][-a-zA-Z0-9_.]*(?:/[^\s:]*)?`),
			replacement: "[home-path]",
			description: "home directory path",
		},
		{
			pattern:     regexp.MustCompile(`/root(?:/[^\s:]*)?`),
			replacement: "[home-path]",
			description: "root home path",
		},
		// Private IPv4 ranges: 10.x.x.x, 172.16-31.x.x, 192.168.x.x .
		{
			pattern:     regexp.MustCompile(`\b10\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`),
			replacement: "[internal-ip]",
			description: "10.x.x.x private IP",
		},
		{
			pattern:     regexp.MustCompile(`\b172\.(1[6-9]|2[0-9]|3[0-1])\.\d{1,3}\.\d{1,3}\b`),
			replacement: "[internal-ip]",
			description: "172.16-31.x.x private IP",
		},
		{
			pattern:     regexp.MustCompile(`\b192\.168\.\d{1,3}\.\d{1,3}\b`),
			replacement: "[internal-ip]",
			description: "192.168.x.x private IP",
		},
		// UUIDs (worker ids, lock values, envelope ids).
		{
			pattern:     regexp.MustCompile(`\b[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}\b`),
			replacement: "[uuid]",
			description: "UUID",
		},
	}
}

// Sanitize resolves the user-facing error for one failure. Lookup order:
// exact reason, case-insensitive reason, substring of reason, substring
// of the raw message, then the type's default.
func (s *Sanitizer) Sanitize(failureType FailureType, reason, message string) *SanitizedError {
	mappings, ok := s.errorMappings[failureType]
	if !ok {
		mappings = s.errorMappings[FailureTypeUnknown]
	}

	if sanitized, ok := mappings[reason]; ok {
		return &sanitized
	}

	reasonLower := strings.ToLower(reason)
	for key, sanitized := range mappings {
		if strings.ToLower(key) == reasonLower {
			return &sanitized
		}
	}

	for key, sanitized := range mappings {
		if key != "default" && strings.Contains(reasonLower, strings.ToLower(key)) {
			return &sanitized
		}
	}

	messageLower := strings.ToLower(message)
	for key, sanitized := range mappings {
		if key != "default" && strings.Contains(messageLower, strings.ToLower(key)) {
			return &sanitized
		}
	}

	if defaultErr, ok := mappings["default"]; ok {
		return &defaultErr
	}

	return &SanitizedError{
		UserMessage: "An error occurred",
		Suggestion:  "Check the coordinator logs",
		ErrorCode:   "ERROR",
	}
}

// SanitizeSensitiveInfo redacts host-internal details from a message.
func (s *Sanitizer) SanitizeSensitiveInfo(message string) string {
	if message == "" {
		return message
	}

	result := message
	for _, sp := range s.sensitivePatterns {
		result = sp.pattern.ReplaceAllString(result, sp.replacement)
	}
	return result
}

// AddErrorMapping registers a custom mapping for one failure reason.
func (s *Sanitizer) AddErrorMapping(failureType FailureType, reason string, sanitized SanitizedError) {
	if _, ok := s.errorMappings[failureType]; !ok {
		s.errorMappings[failureType] = make(map[string]SanitizedError)
	}
	s.errorMappings[failureType][reason] = sanitized
}

// AddSensitivePattern registers a custom redaction pattern.
func (s *Sanitizer) AddSensitivePattern(pattern *regexp.Regexp, replacement, description string) {
	s.sensitivePatterns = append(s.sensitivePatterns, &sensitivePattern{
		pattern:     pattern,
		replacement: replacement,
		description: description,
	})
}

// GetErrorMapping returns the exact mapping for a reason, or nil.
func (s *Sanitizer) GetErrorMapping(failureType FailureType, reason string) *SanitizedError {
	if mappings, ok := s.errorMappings[failureType]; ok {
		if sanitized, ok := mappings[reason]; ok {
			return &sanitized
		}
	}
	return nil
}

// SanitizeFailure scrubs one failure record: the raw message is redacted
// and SanitizedMsg carries the user-facing rendering.
func (s *Sanitizer) SanitizeFailure(info *WorkerFailureInfo) *WorkerFailureInfo {
	if info == nil {
		return nil
	}

	sanitized := s.Sanitize(info.Type, info.Reason, info.Message)

	return &WorkerFailureInfo{
		Type:         info.Type,
		Reason:       info.Reason,
		Message:      s.SanitizeSensitiveInfo(info.Message),
		SanitizedMsg: sanitized.UserMessage + ". " + sanitized.Suggestion,
		OccurredAt:   info.OccurredAt,
	}
}
