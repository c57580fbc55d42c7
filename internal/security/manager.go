// Package security implements the process-singleton security manager:
// input/path/domain validation, resource permits, secret and suspicious
// pattern scanning, SSRF-safe domain resolution, and the structured
// audit sink that the tool dispatch pipeline (internal/tools) wraps
// around every call.
package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/netip"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultMaxInputBytes is the default tool-input length cap (§4.3 step 1).
const DefaultMaxInputBytes = 16 * 1024

// blockedHostnames are denied regardless of the policy's allow/deny lists;
// these never point anywhere an agent should be making outbound requests.
var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
}

// blockedHostnameSuffixes flags hostnames that resolve within a private
// or cloud-metadata naming convention rather than a public one.
var blockedHostnameSuffixes = []string{".localhost", ".local", ".internal"}

// carrierGradeNAT is RFC 6598 (100.64.0.0/10), shared address space used by
// carrier NAT gateways. netip.Addr.IsPrivate covers RFC 1918 and its IPv6
// equivalent but not this range, so it's checked separately.
var carrierGradeNAT = netip.MustParsePrefix("100.64.0.0/10")

// normalizeHost lowercases host, trims surrounding whitespace and a
// trailing root-zone dot, and unwraps IPv6 bracket notation.
func normalizeHost(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	h = strings.TrimSuffix(h, ".")
	if strings.HasPrefix(h, "[") && strings.HasSuffix(h, "]") {
		h = h[1 : len(h)-1]
	}
	return h
}

// blockedAddr reports whether addr must never be reached from a tool:
// loopback, link-local, unspecified, RFC 1918/4193 private space, or
// carrier-grade NAT space.
func blockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsUnspecified() || carrierGradeNAT.Contains(addr)
}

// validateSSRF resolves host and rejects it if it is, or resolves to, a
// blocked hostname or address (§4.3 step 4, §4.5). It runs after the
// policy's own allow/deny domain lists so an operator's explicit allow
// entry is checked first, but a literal private IP or blocked hostname
// is never reachable even via an allow-listed name.
func validateSSRF(ctx context.Context, host string) error {
	normalized := normalizeHost(host)
	if normalized == "" {
		return fmt.Errorf("blocked: empty host")
	}
	if blockedHostnames[normalized] {
		return fmt.Errorf("blocked hostname: %s", host)
	}
	for _, suffix := range blockedHostnameSuffixes {
		if strings.HasSuffix(normalized, suffix) {
			return fmt.Errorf("blocked hostname: %s", host)
		}
	}

	if addr, err := netip.ParseAddr(normalized); err == nil {
		if blockedAddr(addr) {
			return fmt.Errorf("blocked: private/internal IP address")
		}
		return nil
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, normalized)
	if err != nil {
		return fmt.Errorf("unable to resolve hostname: %s: %w", host, err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("unable to resolve hostname: %s", host)
	}
	for _, ip := range ips {
		addr, ok := netip.AddrFromSlice(ip.IP)
		if ok && blockedAddr(addr) {
			return fmt.Errorf("blocked: %s resolves to a private/internal IP address", host)
		}
	}
	return nil
}

// Manager is the process-wide security singleton. It is constructed
// once at startup and injected into the coordinator and tool registry
// rather than referenced as ambient global state, to keep it
// substitutable in tests.
type Manager struct {
	policy   Policy
	audit    *AuditSink
	tracker  *ResourceTracker
	lockdown atomic.Bool
}

// NewManager builds a Manager from a validated policy and wires its
// audit sink.
func NewManager(policy Policy, audit *AuditSink) *Manager {
	m := &Manager{
		policy:  policy,
		audit:   audit,
		tracker: NewResourceTracker(policy.Resources),
	}
	m.lockdown.Store(policy.Emergency.Lockdown)
	return m
}

// Lockdown reports whether emergency lockdown is active.
func (m *Manager) Lockdown() bool { return m.lockdown.Load() }

// SetLockdown toggles the emergency lockdown flag at runtime.
func (m *Manager) SetLockdown(on bool) { m.lockdown.Store(on) }

// ValidateInput enforces the input-length cap and scans for secret and
// suspicious patterns (§4.3 steps 1-3). It returns the (possibly
// redacted-for-logging) input unchanged — redaction only ever affects
// what is logged/audited, never the value passed to the tool.
func (m *Manager) ValidateInput(ctx context.Context, agentID, tool, input string) error {
	if m.Lockdown() {
		return &policyErr{kind: "Lockdown"}
	}
	if len(input) > DefaultMaxInputBytes {
		return &policyErr{kind: "SuspiciousPattern", detail: "input exceeds max length"}
	}
	if hit, pattern := ScanSecrets(input, m.policy.Secrets.ExtraPatterns); hit {
		if m.policy.Secrets.DenyOnMatch {
			return &policyErr{kind: "SecretDetected", detail: pattern}
		}
	}
	if reason := ExtractUnsafeReason(input); reason != "" {
		return &policyErr{kind: "SuspiciousPattern", detail: reason}
	}
	return nil
}

// ValidatePath canonicalizes path and verifies it lies under an allowed
// root and does not match a deny pattern (§4.3 step 4).
func (m *Manager) ValidatePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &policyErr{kind: "PathDenied", detail: err.Error()}
	}
	clean := filepath.Clean(abs)

	allowed := false
	for _, root := range m.policy.FS.AllowPaths {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if clean == rootAbs || strings.HasPrefix(clean, rootAbs+string(filepath.Separator)) {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", &policyErr{kind: "PathDenied", detail: fmt.Sprintf("%s is outside allowed roots", path)}
	}
	for _, pattern := range m.policy.FS.DenyPatterns {
		if ok, _ := filepath.Match(pattern, clean); ok {
			return "", &policyErr{kind: "PathDenied", detail: fmt.Sprintf("%s matches deny pattern %s", path, pattern)}
		}
	}
	return clean, nil
}

// ValidateDomain resolves host and checks it against the HTTP policy's
// allow/deny lists and SSRF/private-IP blocklist, before any TCP connect
// is attempted (§4.3 step 4, §4.5).
func (m *Manager) ValidateDomain(ctx context.Context, host string) error {
	for _, deny := range m.policy.HTTP.DenyDomains {
		if strings.EqualFold(host, deny) {
			return &policyErr{kind: "DomainDenied", detail: host}
		}
	}
	if len(m.policy.HTTP.AllowDomains) > 0 {
		ok := false
		for _, allow := range m.policy.HTTP.AllowDomains {
			if strings.EqualFold(host, allow) {
				ok = true
				break
			}
		}
		if !ok {
			return &policyErr{kind: "DomainDenied", detail: host}
		}
	}
	if err := validateSSRF(ctx, host); err != nil {
		return &policyErr{kind: "DomainDenied", detail: err.Error()}
	}
	return nil
}

// AcquireResourcePermit acquires a concurrency slot for agentID,
// enforcing the resource policy's max_concurrent_ops. The returned
// guard must be released exactly once (deferred release also covers a
// panic unwind).
func (m *Manager) AcquireResourcePermit(ctx context.Context, agentID string) (*PermitGuard, error) {
	return m.tracker.Acquire(ctx, agentID)
}

// MaxExecutionTime returns the per-operation wall-clock deadline.
func (m *Manager) MaxExecutionTime() time.Duration { return m.policy.Resources.MaxExecutionTime() }

// Audit records a structured audit event, redacting secret-bearing
// fields first.
func (m *Manager) Audit(ev AuditEvent) {
	if m.audit != nil {
		m.audit.Emit(ev)
	}
}

// HashInput returns the sha256 hex digest of input for audit records,
// so raw tool input never leaves the process via the audit sink.
func HashInput(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

type policyErr struct {
	kind   string
	detail string
}

func (e *policyErr) Error() string {
	if e.detail == "" {
		return "policy: " + e.kind
	}
	return fmt.Sprintf("policy: %s: %s", e.kind, e.detail)
}

// Kind returns the stable Policy error kind string (PathDenied,
// DomainDenied, SecretDetected, SuspiciousPattern, Lockdown).
func (e *policyErr) Kind() string { return e.kind }
