// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements log scrubbing for credentials. The platform handles
// two secrets that must never reach the logs: OpenRouter API keys (sent to
// the AI upstream) and ImgBB API keys (sent to the image host). Query
// strings logged by Logger() pass through RedactSecrets first, and header
// maps built for diagnostics pass through MaskSensitiveHeaders.
//
// Security note: scrubbing reduces but does not eliminate the risk of
// secrets leaking to logs. Request bodies are never logged at all, which is
// where credentials normally travel.
package middleware

import (
	"regexp"
	"strings"
)

// Patterns for credential-looking material. OpenRouter keys are "sk-or-…"
// (OpenAI-style keys are "sk-…"); ImgBB keys travel as a "key" query
// parameter of 32 hex characters.
var (
	apiKeyRE   = regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{8,}\b`)
	keyParamRE = regexp.MustCompile(`(?i)\b(key|api_key|apikey|token)=[^&\s]+`)
	bearerRE   = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._\-]+`)
)

// sensitiveHeaders are fully masked regardless of content.
var sensitiveHeaders = map[string]struct{}{
	"authorization": {},
	"cookie":        {},
	"set-cookie":    {},
	"x-api-key":     {},
}

// RedactSecrets replaces credential-looking substrings with a marker. It is
// applied to query strings and any other request metadata before logging.
func RedactSecrets(s string) string {
	if s == "" {
		return s
	}
	out := apiKeyRE.ReplaceAllString(s, "[REDACTED:key]")
	out = keyParamRE.ReplaceAllString(out, "$1=[REDACTED]")
	out = bearerRE.ReplaceAllString(out, "Bearer [REDACTED]")
	return out
}

// MaskSensitiveHeaders returns a copy of headers safe for logging: known
// credential headers are fully masked and every other value is scrubbed with
// RedactSecrets. Header name matching is case-insensitive.
func MaskSensitiveHeaders(headers map[string][]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, vv := range headers {
		val := strings.Join(vv, ", ")
		if _, ok := sensitiveHeaders[strings.ToLower(k)]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = RedactSecrets(val)
	}
	return out
}
