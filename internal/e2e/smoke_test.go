package e2e

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmokeFlow(t *testing.T) {
	home := t.TempDir()
	binaryPath := buildBinary(t)
	require.NoError(t, writeRatesFixture(home))

	stdout, stderr, err := runFC(t, binaryPath, home, "wallet", "earn", "30", "--reason", "smoke")
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Equal(t, "balance: 30\n", stdout)

	stdout, stderr, err = runFC(t, binaryPath, home, "session", "pack", "video.example", "--minutes", "15")
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Contains(t, stdout, "video.example\tpack\t900s left")

	stdout, stderr, err = runFC(t, binaryPath, home, "status")
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Contains(t, stdout, "18 coins")
	assert.Contains(t, stdout, "video.example")
	assert.Contains(t, stdout, "pack, chain 0")

	_, _, err = runFC(t, binaryPath, home, "session", "pass", "other.example")
	require.Error(t, err)
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.NotZero(t, exitErr.ExitCode())
}

func buildBinary(t *testing.T) string {
	t.Helper()

	binaryPath := filepath.Join(t.TempDir(), "fc-e2e")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/fc")
	cmd.Dir = repoRoot(t)

	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "build fc binary: %s", string(output))
	return binaryPath
}

func runFC(t *testing.T, binaryPath, home string, args ...string) (string, string, error) {
	t.Helper()

	cmd := exec.Command(binaryPath, args...)
	cmd.Env = append(os.Environ(), "HOME="+home)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func repoRoot(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Clean(filepath.Join(wd, "..", ".."))
}

func writeRatesFixture(home string) error {
	configDir := filepath.Join(home, ".focuscoin")
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return err
	}

	rates := `version = 1

[[rates]]
destination = "video.example"
rate_per_minute = 2.0

[[rates.packs]]
minutes = 15
price = 12
`

	return os.WriteFile(filepath.Join(configDir, "rates.toml"), []byte(rates), 0o600)
}
