package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// captureExit overrides the package-level osExit variable so that calls to
// osExit inside fn are intercepted. It returns the exit code and a boolean
// indicating whether osExit was actually called.
//
// How it works: the replacement panics with an exitSentinel value — the same
// type defined in exit.go — which immediately unwinds the call stack (just
// like a real os.Exit would halt the process). A deferred recover catches
// the sentinel and stores the code. Any other panic is re-raised.
func captureExit(fn func()) (code int, exited bool) {
	old := osExit
	defer func() { osExit = old }()

	osExit = func(c int) {
		panic(exitSentinel(c))
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				if s, ok := r.(exitSentinel); ok {
					code = int(s)
					exited = true
				} else {
					panic(r)
				}
			}
		}()
		fn()
	}()
	return code, exited
}

// captureStdout redirects os.Stdout during fn and returns what was written.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old
	data, _ := io.ReadAll(r)
	return string(data)
}

func validGigiConfigYAML() string {
	return `version: 1
identity:
  credential_file: "account.db"
network:
  listen_addresses:
    - "/ip4/0.0.0.0/tcp/0"
storage:
  output_dir: "downloads"
  share_index_file: "shares.json"
  message_log_file: "messages.db"
`
}

func writeValidGigiConfig(t *testing.T, dir string) string {
	t.Helper()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(validGigiConfigYAML()), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestRunConfigValidate_MissingFile(t *testing.T) {
	code, exited := captureExit(func() {
		runConfigValidate([]string{"--config", "/tmp/nonexistent-gigid-test/gigi.yaml"})
	})
	if !exited || code != 1 {
		t.Errorf("expected exit(1), got exited=%v code=%d", exited, code)
	}
}

func TestRunConfigValidate_Valid(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeValidGigiConfig(t, dir)

	out := captureStdout(t, func() {
		code, exited := captureExit(func() {
			runConfigValidate([]string{"--config", cfgPath})
		})
		if exited {
			t.Errorf("unexpected exit(%d) for a valid config", code)
		}
	})
	if !strings.Contains(out, "OK:") {
		t.Errorf("expected OK output, got %q", out)
	}
}

func TestRunConfigShow_Valid(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeValidGigiConfig(t, dir)

	out := captureStdout(t, func() {
		runConfigShow([]string{"--config", cfgPath})
	})
	if !strings.Contains(out, "credential_file") {
		t.Errorf("expected rendered config, got %q", out)
	}
}

func TestRunConfig_NoSubcommand(t *testing.T) {
	code, exited := captureExit(func() {
		runConfig(nil)
	})
	if !exited || code != 1 {
		t.Errorf("expected exit(1), got exited=%v code=%d", exited, code)
	}
}

func TestRunConfig_UnknownSubcommand(t *testing.T) {
	code, exited := captureExit(func() {
		runConfig([]string{"bogus"})
	})
	if !exited || code != 1 {
		t.Errorf("expected exit(1), got exited=%v code=%d", exited, code)
	}
}

func TestRunWhoami_MissingConfig(t *testing.T) {
	code, exited := captureExit(func() {
		runWhoami([]string{"--config", "/tmp/nonexistent-gigid-test/gigi.yaml"})
	})
	if !exited || code != 1 {
		t.Errorf("expected exit(1), got exited=%v code=%d", exited, code)
	}
}

func TestMain_NoArgs(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"gigid"}

	code, exited := captureExit(func() {
		main()
	})
	if !exited || code != 1 {
		t.Errorf("expected exit(1), got exited=%v code=%d", exited, code)
	}
}

func TestGenerateMnemonic_ValidAndDistinct(t *testing.T) {
	a, err := generateMnemonic()
	if err != nil {
		t.Fatalf("generateMnemonic: %v", err)
	}
	b, err := generateMnemonic()
	if err != nil {
		t.Fatalf("generateMnemonic: %v", err)
	}
	if a == b {
		t.Error("expected two independently generated mnemonics to differ")
	}
	if len(a) == 0 {
		t.Error("expected a non-empty mnemonic")
	}
}
