package security

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml"
)

// Policy is the validated, immutable security policy loaded from a TOML
// document at startup. Default policy is deny-by-default: a feature not
// explicitly allowed is denied.
type Policy struct {
	FS        FSPolicy        `toml:"fs"`
	HTTP      HTTPPolicy      `toml:"http"`
	Network   NetworkPolicy   `toml:"network"`
	Resources ResourcePolicy  `toml:"resources"`
	Audit     AuditPolicy     `toml:"audit"`
	Secrets   SecretsPolicy   `toml:"secrets"`
	Alerting  AlertingPolicy  `toml:"alerting"`
	Emergency EmergencyPolicy `toml:"emergency"`
}

// FSPolicy governs filesystem tool access.
type FSPolicy struct {
	AllowPaths   []string `toml:"allow_paths"`
	DenyPatterns []string `toml:"deny_patterns"`
	MaxFileSize  int64    `toml:"max_file_size"`
	AllowSymlink bool     `toml:"allow_symlinks"`
}

// HTTPPolicy governs the HTTP tools.
type HTTPPolicy struct {
	AllowDomains   []string `toml:"allow_domains"`
	DenyDomains    []string `toml:"deny_domains"`
	AllowMethods   []string `toml:"allow_methods"`
	MaxResponse    int64    `toml:"max_response_bytes"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	UserAgent      string   `toml:"user_agent"`
}

// NetworkPolicy governs raw network/port access used by HTTP/mesh
// transports.
type NetworkPolicy struct {
	AllowPorts []int `toml:"allow_ports"`
	DenyPorts  []int `toml:"deny_ports"`
}

// ResourcePolicy bounds per-operation resource consumption.
type ResourcePolicy struct {
	MaxMemoryMB        int `toml:"max_memory_mb"`
	MaxCPUPercent      int `toml:"max_cpu_percent"`
	MaxConcurrentOps   int `toml:"max_concurrent_ops"`
	MaxExecutionMillis int `toml:"max_execution_millis"`
	// MaxOpsPerSecond caps per-agent dispatch rate via a token bucket.
	// Zero disables rate limiting; only the concurrency semaphore applies.
	MaxOpsPerSecond int `toml:"max_ops_per_second"`
}

// MaxExecutionTime returns the resource policy's per-operation deadline.
func (r ResourcePolicy) MaxExecutionTime() time.Duration {
	if r.MaxExecutionMillis <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.MaxExecutionMillis) * time.Millisecond
}

// AuditPolicy governs the structured audit sink.
type AuditPolicy struct {
	Enabled    bool   `toml:"enabled"`
	Output     string `toml:"output"`
	BufferSize int    `toml:"buffer_size"`
}

// SecretsPolicy governs the secret-pattern scanner's enforcement mode.
type SecretsPolicy struct {
	DenyOnMatch   bool     `toml:"deny_on_match"`
	ExtraPatterns []string `toml:"extra_patterns"`
}

// AlertingPolicy governs where policy violations are reported beyond
// the audit sink (out of scope beyond a named sink identifier — the
// external collaborator owns delivery).
type AlertingPolicy struct {
	Sink string `toml:"sink"`
}

// EmergencyPolicy governs the lockdown flag.
type EmergencyPolicy struct {
	Lockdown bool `toml:"lockdown"`
}

// DefaultPolicy returns a conservative, deny-by-default policy suitable
// for tests and as a safe startup fallback.
func DefaultPolicy() Policy {
	return Policy{
		FS: FSPolicy{
			AllowPaths:   []string{"."},
			DenyPatterns: []string{"**/.git/**", "**/.env*"},
			MaxFileSize:  10 * 1024 * 1024,
		},
		HTTP: HTTPPolicy{
			AllowMethods:   []string{"GET", "POST"},
			MaxResponse:    1024 * 1024,
			TimeoutSeconds: 10,
			UserAgent:      "agentkernel/1.0",
		},
		Resources: ResourcePolicy{
			MaxMemoryMB:        512,
			MaxCPUPercent:      80,
			MaxConcurrentOps:   16,
			MaxExecutionMillis: 30000,
		},
		Audit: AuditPolicy{
			Enabled:    true,
			Output:     "stdout",
			BufferSize: 1000,
		},
		Secrets: SecretsPolicy{DenyOnMatch: true},
	}
}

// LoadPolicy parses and validates a TOML security policy document from
// path. Unknown top-level keys produce a load-time error.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("security: read policy %s: %w", path, err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses and validates a TOML security policy document.
func ParsePolicy(data []byte) (Policy, error) {
	tree, err := toml.LoadBytes(data)
	if err != nil {
		return Policy{}, fmt.Errorf("security: parse policy: %w", err)
	}

	allowedSections := map[string]bool{
		"fs": true, "http": true, "network": true, "resources": true,
		"audit": true, "secrets": true, "alerting": true, "emergency": true,
	}
	for _, key := range tree.Keys() {
		if !allowedSections[key] {
			return Policy{}, fmt.Errorf("security: unknown policy section %q", key)
		}
	}

	policy := DefaultPolicy()
	if err := tree.Unmarshal(&policy); err != nil {
		return Policy{}, fmt.Errorf("security: decode policy: %w", err)
	}
	if err := policy.validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

func (p Policy) validate() error {
	if p.Resources.MaxConcurrentOps <= 0 {
		return fmt.Errorf("security: resources.max_concurrent_ops must be > 0")
	}
	if p.Resources.MaxExecutionMillis <= 0 {
		return fmt.Errorf("security: resources.max_execution_millis must be > 0")
	}
	if p.HTTP.MaxResponse <= 0 {
		return fmt.Errorf("security: http.max_response_bytes must be > 0")
	}
	return nil
}
