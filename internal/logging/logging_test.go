package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"trace", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) expected error")
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tw.log")
	l, err := New(&Config{
		Level:     LevelInfo,
		Format:    FormatJSON,
		Output:    "file",
		FilePath:  path,
		Component: "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Info("hello", "k", "v")
	l.Debug("filtered out")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"msg":"hello"`) {
		t.Errorf("log output missing message: %q", out)
	}
	if !strings.Contains(out, `"component":"test"`) {
		t.Errorf("log output missing component: %q", out)
	}
	if strings.Contains(out, "filtered out") {
		t.Error("debug entry should be filtered at info level")
	}
}

func TestFileOutputRequiresPath(t *testing.T) {
	if _, err := New(&Config{Output: "file"}); err == nil {
		t.Fatal("expected error for file output without path")
	}
}

func TestWithComponent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tw.log")
	l, err := New(&Config{Output: "file", FilePath: path, Format: FormatJSON, Component: "parent"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	child := l.WithComponent("child")
	child.Info("tagged")
	l.Close()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"component":"child"`) {
		t.Errorf("child component tag missing: %q", string(data))
	}
}
