package instance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matheus3301/chatrelay/internal/config"
)

func TestPathsUnderHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("CHATRELAY_HOME", home)

	if got, want := Dir("main"), filepath.Join(home, "instances", "main"); got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
	if got, want := AdminSocketPath("x"), filepath.Join(home, "instances", "x", "admin.sock"); got != want {
		t.Errorf("AdminSocketPath(x) = %q, want %q", got, want)
	}
	if got, want := LogPath("x"), filepath.Join(home, "instances", "x", "logs", "relayd.log"); got != want {
		t.Errorf("LogPath(x) = %q, want %q", got, want)
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv("CHATRELAY_HOME", t.TempDir())

	if err := EnsureDir("test"); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(LogDir("test"))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("log dir is not a directory")
	}
}

func TestResolve(t *testing.T) {
	t.Setenv("CHATRELAY_HOME", t.TempDir())

	if got := Resolve("flag"); got != "flag" {
		t.Errorf("Resolve(flag) = %q", got)
	}
	if got := Resolve(""); got != DefaultName {
		t.Errorf("Resolve() without config = %q, want %q", got, DefaultName)
	}

	cfg := config.Default()
	cfg.DefaultInstance = "staging"
	if err := config.Save(ConfigPath(), cfg); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "staging" {
		t.Errorf("Resolve() with config = %q, want staging", got)
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "main", false},
		{"valid with numbers", "relay2", false},
		{"valid with hyphen", "eu-west", false},
		{"valid with underscore", "eu_west", false},
		{"empty", "", true},
		{"uppercase", "Main", true},
		{"dot", "a.b", true},
		{"slash", "a/b", true},
		{"too long", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
