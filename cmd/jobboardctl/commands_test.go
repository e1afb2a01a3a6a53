package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		sweepPolicy = ""
		catalogPath = ""
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func memoryEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("REDIS_URL", "")
	t.Setenv("QUEUE_URL", "")
	t.Setenv("PLAN_CATALOG_PATH", "")
	t.Setenv("RENEWAL_POLICY", "renew")
	t.Setenv("LOG_STYLE", "json")
	t.Setenv("LOG_LEVEL", "error")
}

func TestVersionCmd(t *testing.T) {
	old := Version
	defer func() { Version = old }()
	Version = "1.2.3"

	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "jobboardctl 1.2.3")
	assert.NotContains(t, out, "Commit:")
}

func TestPlansCmdDefaultCatalog(t *testing.T) {
	memoryEnv(t)
	out, err := run(t, "plans")
	require.NoError(t, err)
	assert.Contains(t, out, "Free_Trial")
	assert.Contains(t, out, "Enterprise")
	assert.Contains(t, out, "unlimited")
}

func TestPlansCmdCatalogFile(t *testing.T) {
	memoryEnv(t)
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plans:\n  - name: Basic\n    quota: 4\n    term_months: 1\n"), 0o600))

	out, err := run(t, "plans", "--catalog", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Basic")
	assert.NotContains(t, out, "Enterprise")
}

func TestSweepCmdEmptyStore(t *testing.T) {
	memoryEnv(t)
	out, err := run(t, "sweep", "--policy", "expire")
	require.NoError(t, err)
	assert.Contains(t, out, "due=0 renewed=0 lapsed=0 skipped=0 failed=0")
}

func TestSweepCmdRejectsUnknownPolicy(t *testing.T) {
	memoryEnv(t)
	_, err := run(t, "sweep", "--policy", "forever")
	assert.Error(t, err)
}

func TestApplyPlanCmdUnknownAccount(t *testing.T) {
	memoryEnv(t)
	_, err := run(t, "apply-plan", "missing", "Pro")
	assert.Error(t, err)
}
