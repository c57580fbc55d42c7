package security

import "regexp"

// builtinSecretPatterns names the shapes the dispatch pipeline scans
// tool input/output for (§4.3 steps 2, 6): API key prefixes, JWT shape,
// private-key headers, and generic high-entropy secret assignments. The
// same shapes back internal/observability's log redaction; kept as a
// separate, explicitly-named list here since the security manager's
// scanner must report *which* pattern matched for the audit event,
// where the logger only needs to redact.
var builtinSecretPatterns = map[string]*regexp.Regexp{
	"anthropic_api_key": regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{95,}`),
	"openai_api_key":    regexp.MustCompile(`sk-[a-zA-Z0-9]{48,}`),
	"jwt":               regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),
	"private_key_block": regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----`),
	"aws_access_key":    regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	"generic_assignment": regexp.MustCompile(
		`(?i)(api[_-]?key|secret|password|token)[\s:=]+["']?[a-zA-Z0-9_\-./+]{16,}["']?`,
	),
}

// ScanSecrets reports whether input matches a built-in or policy-supplied
// extra secret pattern, and names the first pattern that matched.
func ScanSecrets(input string, extra []string) (bool, string) {
	for name, re := range builtinSecretPatterns {
		if re.MatchString(input) {
			return true, name
		}
	}
	for _, pattern := range extra {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		if re.MatchString(input) {
			return true, "policy_extra"
		}
	}
	return false, ""
}

// RedactSecrets replaces every recognized secret occurrence in s with a
// fixed placeholder, for values that must leave the process (audit
// events, error messages) even when the match itself is permitted.
func RedactSecrets(s string) string {
	for _, re := range builtinSecretPatterns {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}
