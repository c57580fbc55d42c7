package security

import (
	"regexp"
	"strings"
)

// Finding is one suspicious pattern match surfaced by ScanInput.
type Finding struct {
	// Token is the matched text (a metacharacter, path segment, or
	// matched regex fragment) that triggered the finding.
	Token string `json:"token"`

	// Position is the byte offset where the match starts in the input.
	Position int `json:"position"`

	// Category classifies what kind of suspicious pattern this is:
	// command_chain, pipe, redirect, subshell, background, path_traversal,
	// sql_injection, or script_tag.
	Category string `json:"category"`
}

// InputScan is the result of scanning a tool input for suspicious
// patterns (§4.3 step 3).
type InputScan struct {
	// Input is the string that was scanned.
	Input string `json:"-"`

	// Clean reports whether no suspicious pattern was found.
	Clean bool `json:"clean"`

	// Findings holds every match, in the order the categories were
	// checked (shell metacharacters, then path traversal, SQL injection
	// shapes, then script tags).
	Findings []Finding `json:"findings,omitempty"`

	// Reason is a human-readable, semicolon-joined summary of the
	// distinct categories found, suitable for a policy error's detail.
	Reason string `json:"reason,omitempty"`
}

// shellMetacharacters maps shell metacharacters to their risk category.
// Longer sequences are listed before the single characters they contain
// so ">>" is reported once rather than as two "redirect" hits.
var shellMetacharacters = []struct {
	token    string
	category string
}{
	{">>", "redirect"},
	{"&&", "command_chain"},
	{"||", "command_chain"},
	{"$(", "subshell"},
	{";", "command_chain"},
	{"|", "pipe"},
	{">", "redirect"},
	{"<", "redirect"},
	{"`", "subshell"},
	{"&", "background"},
}

// categoryDescriptions gives a one-line explanation per category, joined
// into InputScan.Reason for every distinct category a scan turns up.
var categoryDescriptions = map[string]string{
	"command_chain":  "command chaining allows execution of multiple commands",
	"pipe":           "pipes allow output to be redirected to another command",
	"redirect":       "redirects can overwrite files or read sensitive data",
	"subshell":       "subshells allow arbitrary command execution",
	"background":     "background execution can spawn persistent processes",
	"path_traversal": "path traversal segments can escape an allowed directory",
	"sql_injection":  "input resembles a SQL injection payload",
	"script_tag":     "input contains an embedded script or event handler",
}

// sqlInjectionShapes flags the handful of token combinations that show
// up in classic SQL injection payloads: statement terminators followed
// by a second statement, SQL comment markers used to truncate a query,
// always-true tautologies, and UNION-based exfiltration.
var sqlInjectionShapes = []*regexp.Regexp{
	regexp.MustCompile(`(?i);\s*(drop|delete|update|insert|alter|truncate)\s+`),
	regexp.MustCompile(`--\s`),
	regexp.MustCompile(`/\*.*\*/`),
	regexp.MustCompile(`(?i)\bunion\b\s+(all\s+)?select\b`),
	regexp.MustCompile(`(?i)\bor\b\s+['"]?\d+['"]?\s*=\s*['"]?\d+['"]?`),
	regexp.MustCompile(`'\s*(or|and)\s*'`),
}

// scriptTagPattern flags embedded markup that would execute as script
// if rendered or templated unescaped: <script> tags, javascript: URIs,
// and inline on* event handler attributes.
var scriptTagPattern = regexp.MustCompile(`(?i)<\s*script\b|javascript\s*:|on\w+\s*=\s*['"]`)

// pathTraversalPattern flags a ".." directory segment, in either slash
// style, wherever it appears in the input.
var pathTraversalPattern = regexp.MustCompile(`(?:^|[/\\])\.\.(?:[/\\]|$)`)

// ScanInput scans input for the full suspicious-pattern surface checked
// by ValidateInput: shell metacharacters outside quotes, path-traversal
// segments, SQL-injection shapes, and script tags. ValidateInput's
// callers accept arbitrary tool arguments (file paths, URLs, free text),
// not just shell commands, so all four categories run unconditionally.
func ScanInput(input string) *InputScan {
	scan := &InputScan{Input: input, Clean: true}
	if input == "" {
		return scan
	}

	scan.Findings = append(scan.Findings, findUnquotedMetacharacters(input)...)

	if loc := pathTraversalPattern.FindStringIndex(input); loc != nil {
		scan.Findings = append(scan.Findings, Finding{
			Token:    input[loc[0]:loc[1]],
			Position: loc[0],
			Category: "path_traversal",
		})
	}

	for _, re := range sqlInjectionShapes {
		if loc := re.FindStringIndex(input); loc != nil {
			scan.Findings = append(scan.Findings, Finding{
				Token:    input[loc[0]:loc[1]],
				Position: loc[0],
				Category: "sql_injection",
			})
			break
		}
	}

	if loc := scriptTagPattern.FindStringIndex(input); loc != nil {
		scan.Findings = append(scan.Findings, Finding{
			Token:    input[loc[0]:loc[1]],
			Position: loc[0],
			Category: "script_tag",
		})
	}

	if len(scan.Findings) > 0 {
		scan.Clean = false
		scan.Reason = summarizeCategories(scan.Findings)
	}
	return scan
}

func summarizeCategories(findings []Finding) string {
	seen := make(map[string]bool, len(findings))
	var reasons []string
	for _, f := range findings {
		if seen[f.Category] {
			continue
		}
		seen[f.Category] = true
		if desc, ok := categoryDescriptions[f.Category]; ok {
			reasons = append(reasons, desc)
		}
	}
	return strings.Join(reasons, "; ")
}

// findUnquotedMetacharacters walks cmd once, tracking single/double
// quote state, and reports every shell metacharacter match outside a
// quoted span. Escaped characters (preceded by an unescaped backslash
// outside single quotes) are not matched.
func findUnquotedMetacharacters(cmd string) []Finding {
	inSingleQuote := false
	inDoubleQuote := false
	escaped := false

	unquoted := make([]bool, len(cmd))
	for i := 0; i < len(cmd); i++ {
		c := cmd[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && !inSingleQuote {
			escaped = true
			continue
		}
		if c == '\'' && !inDoubleQuote {
			inSingleQuote = !inSingleQuote
			continue
		}
		if c == '"' && !inSingleQuote {
			inDoubleQuote = !inDoubleQuote
			continue
		}
		if !inSingleQuote && !inDoubleQuote {
			unquoted[i] = true
		}
	}

	var findings []Finding
	for _, m := range shellMetacharacters {
		idx := 0
		for {
			pos := strings.Index(cmd[idx:], m.token)
			if pos == -1 {
				break
			}
			actualPos := idx + pos
			idx = actualPos + len(m.token)

			if !withinUnquoted(unquoted, actualPos, len(m.token)) {
				continue
			}
			if overlapsLongerMatch(cmd, unquoted, actualPos, m.token) {
				continue
			}
			findings = append(findings, Finding{Token: m.token, Position: actualPos, Category: m.category})
		}
	}
	return findings
}

func withinUnquoted(unquoted []bool, pos, length int) bool {
	for i := pos; i < pos+length && i < len(unquoted); i++ {
		if !unquoted[i] {
			return false
		}
	}
	return true
}

// overlapsLongerMatch avoids double-reporting a single character that is
// actually part of a longer token already matched earlier in the table
// (e.g. the second "&" of "&&", or the lone "|" inside "||").
func overlapsLongerMatch(cmd string, unquoted []bool, pos int, token string) bool {
	if len(token) != 1 {
		return false
	}
	c := token[0]
	if c != '&' && c != '|' && c != '>' {
		return false
	}
	if pos > 0 && unquoted[pos-1] && cmd[pos-1] == c {
		return true
	}
	if pos+1 < len(cmd) && unquoted[pos+1] && cmd[pos+1] == c {
		return true
	}
	return false
}

// ExtractUnsafeReason returns ScanInput's Reason for input, or an empty
// string if the input is clean. This is what ValidateInput (§4.3 step 3)
// checks every tool input against.
func ExtractUnsafeReason(input string) string {
	return ScanInput(input).Reason
}
