package status

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPropertySensitiveInfoAlwaysRemoved(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.MaxSize = 50

	properties := gopter.NewProperties(parameters)
	sanitizer := NewSanitizer()

	properties.Property("private IPs are always removed", prop.ForAll(
		func(ip, prefix, suffix string) bool {
			result := sanitizer.SanitizeSensitiveInfo(prefix + ip + suffix)
			return !strings.Contains(result, ip)
		},
		genPrivateIP(),
		genMessagePrefix(),
		genMessageSuffix(),
	))

	properties.Property("home paths are always removed", prop.ForAll(
		func(path, prefix, suffix string) bool {
			result := sanitizer.SanitizeSensitiveInfo(prefix + path + suffix)
			return !strings.Contains(result, path)
		},
		genHomePath(),
		genMessagePrefix(),
		genMessageSuffix(),
	))

	properties.Property("credential assignments never leak their value", prop.ForAll(
		func(key, value, prefix string) bool {
			message := prefix + key + "=" + value
			result := sanitizer.SanitizeSensitiveInfo(message)
			return !strings.Contains(result, value)
		},
		genCredentialKey(),
		gen.RegexMatch(`[a-zA-Z0-9]{6,20}`),
		genMessagePrefix(),
	))

	properties.Property("mysql DSN passwords never leak", prop.ForAll(
		func(user, pass, host string) bool {
			dsn := fmt.Sprintf("%s:%s@tcp(%s:3306)/audit", user, pass, host)
			result := sanitizer.SanitizeSensitiveInfo("open failed: " + dsn)
			return !strings.Contains(result, pass)
		},
		gen.RegexMatch(`[a-z][a-z0-9_]{2,10}`),
		gen.RegexMatch(`[a-zA-Z0-9]{6,16}`),
		gen.RegexMatch(`[a-z][a-z0-9.]{2,15}`),
	))

	properties.Property("UUIDs are always removed", prop.ForAll(
		func(uuid, prefix, suffix string) bool {
			result := sanitizer.SanitizeSensitiveInfo(prefix + uuid + suffix)
			return !strings.Contains(result, uuid)
		},
		genUUID(),
		genMessagePrefix(),
		genMessageSuffix(),
	))

	properties.TestingRun(t)
}

func TestPropertySanitizationBehavior(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.MaxSize = 50

	properties := gopter.NewProperties(parameters)
	sanitizer := NewSanitizer()

	properties.Property("non-sensitive action words survive", prop.ForAll(
		func(actionWord string) bool {
			result := sanitizer.SanitizeSensitiveInfo(actionWord + " at 10.0.0.1")
			return strings.Contains(result, actionWord)
		},
		genActionWord(),
	))

	properties.Property("safe messages pass through unchanged", prop.ForAll(
		func(message string) bool {
			return sanitizer.SanitizeSensitiveInfo(message) == message
		},
		genSafeMessage(),
	))

	properties.Property("sanitization is idempotent", prop.ForAll(
		func(message string) bool {
			once := sanitizer.SanitizeSensitiveInfo(message)
			return once == sanitizer.SanitizeSensitiveInfo(once)
		},
		genSensitiveMessage(),
	))

	properties.Property("sanitization is deterministic", prop.ForAll(
		func(message string) bool {
			return sanitizer.SanitizeSensitiveInfo(message) == sanitizer.SanitizeSensitiveInfo(message)
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestPropertySanitizeAlwaysUserFriendly(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.MaxSize = 50

	properties := gopter.NewProperties(parameters)
	sanitizer := NewSanitizer()

	properties.Property("every failure type and reason yields a complete error", prop.ForAll(
		func(failureType FailureType, reason, message string) bool {
			result := sanitizer.Sanitize(failureType, reason, message)
			return result != nil &&
				len(result.UserMessage) > 0 &&
				len(result.Suggestion) > 0 &&
				len(result.ErrorCode) > 0
		},
		genFailureType(),
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.Property("known signal reasons produce SIGNAL_ codes", prop.ForAll(
		func(reason string) bool {
			result := sanitizer.Sanitize(FailureTypeSignal, reason, "")
			return result != nil && strings.HasPrefix(result.ErrorCode, "SIGNAL")
		},
		gen.OneConstOf("SIGKILL", "SIGSEGV", "SIGABRT", "SIGTERM", "SIGBUS"),
	))

	properties.Property("sanitize is deterministic", prop.ForAll(
		func(failureType FailureType, reason, message string) bool {
			a := sanitizer.Sanitize(failureType, reason, message)
			b := sanitizer.Sanitize(failureType, reason, message)
			return a.UserMessage == b.UserMessage &&
				a.Suggestion == b.Suggestion &&
				a.ErrorCode == b.ErrorCode
		},
		genFailureType(),
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestPropertyClassifyExit(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("a signal always classifies as a signal failure", prop.ForAll(
		func(exitCode int, signal string) bool {
			ft, reason := ClassifyExit(exitCode, signal)
			return ft == FailureTypeSignal && strings.HasPrefix(reason, "SIG")
		},
		gen.IntRange(0, 255),
		gen.OneConstOf("SIGKILL", "SIGTERM", "kill", "term", "SIGSEGV", "abrt"),
	))

	properties.Property("non-zero codes without a signal are never unknown", prop.ForAll(
		func(exitCode int) bool {
			ft, _ := ClassifyExit(exitCode, "")
			return ft == FailureTypeCrash || ft == FailureTypeSignal
		},
		gen.IntRange(1, 255),
	))

	properties.Property("classification is deterministic", prop.ForAll(
		func(exitCode int, signal string) bool {
			ft1, r1 := ClassifyExit(exitCode, signal)
			ft2, r2 := ClassifyExit(exitCode, signal)
			return ft1 == ft2 && r1 == r2
		},
		gen.IntRange(0, 255),
		gen.OneConstOf("", "SIGKILL", "SIGTERM"),
	))

	properties.TestingRun(t)
}

func genPrivateIP() gopter.Gen {
	return gen.OneGenOf(
		gopter.CombineGens(
			gen.IntRange(0, 255),
			gen.IntRange(0, 255),
			gen.IntRange(0, 255),
		).Map(func(vals []interface{}) string {
			return fmt.Sprintf("10.%d.%d.%d", vals[0], vals[1], vals[2])
		}),
		gopter.CombineGens(
			gen.IntRange(16, 31),
			gen.IntRange(0, 255),
			gen.IntRange(0, 255),
		).Map(func(vals []interface{}) string {
			return fmt.Sprintf("172.%d.%d.%d", vals[0], vals[1], vals[2])
		}),
		gopter.CombineGens(
			gen.IntRange(0, 255),
			gen.IntRange(0, 255),
		).Map(func(vals []interface{}) string {
			return fmt.Sprintf("192.168.%d.%d", vals[0], vals[1])
		}),
	)
}

func genHomePath() gopter.Gen {
	return gen.OneGenOf(
		gen.RegexMatch(`[a-z][a-z0-9]{2,8}`).Map(func(s string) string {
			return "/home/" + s + "/cluster/config.yaml"
		}),
		gen.RegexMatch(`[a-z][a-z0-9]{2,8}`).Map(func(s string) string {
			return "/Users/" + s + "/work/cluster.log"
		}),
	)
}

func genCredentialKey() gopter.Gen {
	return gen.OneConstOf(
		"PASSWORD",
		"REDIS_PASSWORD",
		"MYSQL_PASSWORD",
		"API_KEY",
		"api_key",
		"WEBHOOK_SECRET",
		"AUTH_TOKEN",
	)
}

func genUUID() gopter.Gen {
	return gopter.CombineGens(
		gen.RegexMatch(`[a-f0-9]{8}`),
		gen.RegexMatch(`[a-f0-9]{4}`),
		gen.RegexMatch(`[a-f0-9]{4}`),
		gen.RegexMatch(`[a-f0-9]{4}`),
		gen.RegexMatch(`[a-f0-9]{12}`),
	).Map(func(vals []interface{}) string {
		return fmt.Sprintf("%s-%s-%s-%s-%s", vals[0], vals[1], vals[2], vals[3], vals[4])
	})
}

func genMessagePrefix() gopter.Gen {
	return gen.OneConstOf(
		"Error on ",
		"Failed to connect to ",
		"Worker died on ",
		"Spawn rejected: ",
		"Timeout waiting for ",
		"",
	)
}

func genMessageSuffix() gopter.Gen {
	return gen.OneConstOf(
		" failed",
		" not responding",
		" timed out",
		"",
	)
}

func genActionWord() gopter.Gen {
	return gen.OneConstOf(
		"Error",
		"Failed",
		"Cannot",
		"Unable",
		"Timeout",
		"Crashed",
		"Terminated",
		"Restarting",
	)
}

func genSafeMessage() gopter.Gen {
	return gen.OneConstOf(
		"worker exited with code 1",
		"heartbeat missed",
		"control channel closed",
		"scaling cooldown active",
		"circuit breaker open",
		"",
	)
}

func genSensitiveMessage() gopter.Gen {
	return gen.OneGenOf(
		genPrivateIP().Map(func(s string) string {
			return "Connection to " + s + " failed"
		}),
		genHomePath().Map(func(s string) string {
			return "config not found at " + s
		}),
		genUUID().Map(func(s string) string {
			return "lock held by " + s
		}),
		gopter.CombineGens(genCredentialKey(), gen.RegexMatch(`[a-zA-Z0-9]{6,16}`)).Map(func(vals []interface{}) string {
			return fmt.Sprintf("env %s=%s rejected", vals[0], vals[1])
		}),
	)
}

func genFailureType() gopter.Gen {
	return gen.OneConstOf(
		FailureTypeCrash,
		FailureTypeSignal,
		FailureTypeOOM,
		FailureTypeStartup,
		FailureTypeHeartbeat,
		FailureTypeUnknown,
	)
}
