package security

import (
	"path/filepath"
	"testing"
)

func TestResolveEntry(t *testing.T) {
	base := filepath.Join(string(filepath.Separator), "tmp", "restore")

	tests := []struct {
		entry   string
		wantErr bool
	}{
		{"save.dat", false},
		{"profiles/1/slot.sav", false},
		{"./a/../b.sav", false},
		{"../escape.sav", true},
		{"a/../../escape.sav", true},
		{"/etc/passwd", true},
		{`C:\Windows\system.ini`, true},
		{"c:/windows/win.ini", true},
		{"dosdevices/c:", false},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			got, err := ResolveEntry(base, tt.entry)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveEntry(%q) error = %v, wantErr %v", tt.entry, err, tt.wantErr)
			}
			if err == nil {
				if vErr := ValidatePath(base, got); vErr != nil {
					t.Errorf("ResolveEntry(%q) = %s escapes base", tt.entry, got)
				}
			}
		})
	}
}

func TestValidatePathPartialPrefix(t *testing.T) {
	if err := ValidatePath("/saves/game", "/saves/game2/file"); err == nil {
		t.Error("ValidatePath should reject sibling directories sharing a prefix")
	}
	if err := ValidatePath("/saves/game", "/saves/game"); err != nil {
		t.Errorf("ValidatePath(base, base) = %v, want nil", err)
	}
}

func TestIsSafeName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Hades", true},
		{"Baldur's Gate 3", true},
		{"", false},
		{"..", false},
		{"a/b", false},
		{`a\b`, false},
	}

	for _, tt := range tests {
		if got := IsSafeName(tt.name); got != tt.want {
			t.Errorf("IsSafeName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
