package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	safeDir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"direct child", filepath.Join(safeDir, "series.raw"), false},
		{"nested child", filepath.Join(safeDir, "ct", "series.raw"), false},
		{"dot segments resolving inside", filepath.Join(safeDir, "ct", "..", "series.raw"), false},
		{"parent escape", filepath.Join(safeDir, "..", "series.raw"), true},
		{"deep escape", filepath.Join(safeDir, "..", "..", "etc", "passwd"), true},
		{"unrelated absolute", "/etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, safeDir)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePathWithinDirectory(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePathRejectsSymlinkEscape(t *testing.T) {
	safeDir := t.TempDir()
	outside := t.TempDir()

	target := filepath.Join(outside, "secret.raw")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	link := filepath.Join(safeDir, "alias.raw")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if err := ValidatePathWithinDirectory(link, safeDir); err == nil {
		t.Error("symlink escaping the safe directory was accepted")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"1.2.840.113619.2.55", "1.2.840.113619.2.55"},
		{"CT CHEST/W", "CT_CHEST_W"},
		{"../../etc/passwd", ".._.._etc_passwd"},
		{"", "unknown"},
		{"///", "unknown"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
