package main

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/dirshuttle/dirshuttle/internal/reconcile"
)

func setupTestFs() afero.Fs {
	return afero.NewMemMapFs()
}

// Expectation: unset flags fall back to their documented defaults.
func Test_Unit_ParseArgs_Unset_Defaults_Success(t *testing.T) {
	t.Parallel()

	fs := setupTestFs()
	var stdout, stderr bytes.Buffer

	args := []string{"program", "--dir", "/src", "/dst"}

	prog, err := newProgram(args, fs, &stdout, &stderr)
	require.NoError(t, err)
	require.NotNil(t, prog)

	require.Equal(t, "dir", prog.opts.Mode)
	require.Equal(t, "/src", prog.opts.Src)
	require.Equal(t, "/dst", prog.opts.Dst)
	require.Empty(t, prog.opts.Ignore)
	require.False(t, prog.opts.Mirror)
	require.False(t, prog.opts.DryRun)
	require.Equal(t, "fast", prog.opts.HashMode)
	require.False(t, prog.opts.Verify)
	require.Equal(t, reconcile.DefaultMaxCopyWorkers, prog.opts.MaxCopyWorkers)
	require.InDelta(t, reconcile.DefaultDirMoveThreshold, prog.opts.DirMoveThreshold, 0.0001)
	require.False(t, prog.opts.CaseInsensitive)
	require.False(t, prog.opts.SlowMode)
	require.False(t, prog.opts.JSON)
	require.Equal(t, "info", prog.opts.LogLevel)

	require.Equal(t, reconcile.ModeDir, prog.mode)
	require.Equal(t, reconcile.HashFast, prog.hashMode)
}

// Expectation: every known flag can be parsed to a non-default value.
func Test_Unit_ParseArgs_All_Success(t *testing.T) {
	t.Parallel()

	fs := setupTestFs()
	var stdout, stderr bytes.Buffer

	args := []string{
		"program",
		"--file",
		"--ignore=/src/skip",
		"--ignore=/src/also-skip",
		"--mirror",
		"--dry-run",
		"--hash=strong",
		"--verify",
		"--max-copy-workers=8",
		"--move-threshold=0.5",
		"--case-insensitive",
		"--slow-mode",
		"--log-level=debug",
		"--json",
		"/src/a.txt",
		"/dst/a.txt",
	}

	prog, err := newProgram(args, fs, &stdout, &stderr)
	require.NoError(t, err)
	require.NotNil(t, prog)

	require.Equal(t, "file", prog.opts.Mode)
	require.Equal(t, "/src/a.txt", prog.opts.Src)
	require.Equal(t, "/dst/a.txt", prog.opts.Dst)
	require.Equal(t, []string{"/src/skip", "/src/also-skip"}, []string(prog.opts.Ignore))
	require.True(t, prog.opts.Mirror)
	require.True(t, prog.opts.DryRun)
	require.Equal(t, "strong", prog.opts.HashMode)
	require.True(t, prog.opts.Verify)
	require.Equal(t, 8, prog.opts.MaxCopyWorkers)
	require.InDelta(t, 0.5, prog.opts.DirMoveThreshold, 0.0001)
	require.True(t, prog.opts.CaseInsensitive)
	require.True(t, prog.opts.SlowMode)
	require.Equal(t, "debug", prog.opts.LogLevel)
	require.True(t, prog.opts.JSON)

	require.Equal(t, reconcile.ModeFile, prog.mode)
	require.Equal(t, reconcile.HashStrong, prog.hashMode)
}

func Test_Unit_ParseArgs_BothDirAndFile_Error(t *testing.T) {
	t.Parallel()

	fs := setupTestFs()
	var stdout, stderr bytes.Buffer

	args := []string{"program", "--dir", "--file", "/src", "/dst"}

	_, err := newProgram(args, fs, &stdout, &stderr)
	require.Error(t, err)
}

func Test_Unit_ValidateOpts_NeitherModeGiven_Error(t *testing.T) {
	t.Parallel()

	fs := setupTestFs()
	var stdout, stderr bytes.Buffer

	args := []string{"program", "/src", "/dst"}

	_, err := newProgram(args, fs, &stdout, &stderr)
	require.ErrorIs(t, err, errArgModeMismatch)
}

func Test_Unit_ValidateOpts_MissingPositionalArgs_Error(t *testing.T) {
	t.Parallel()

	fs := setupTestFs()
	var stdout, stderr bytes.Buffer

	args := []string{"program", "--dir"}

	_, err := newProgram(args, fs, &stdout, &stderr)
	require.ErrorIs(t, err, errArgMissingSrcDst)
}

func Test_Unit_ValidateOpts_SrcEqualsDst_Error(t *testing.T) {
	t.Parallel()

	fs := setupTestFs()
	var stdout, stderr bytes.Buffer

	args := []string{"program", "--dir", "/same", "/same"}

	_, err := newProgram(args, fs, &stdout, &stderr)
	require.ErrorIs(t, err, errArgSrcDstSame)
}

func Test_Unit_ValidateOpts_RelativePaths_Error(t *testing.T) {
	t.Parallel()

	fs := setupTestFs()
	var stdout, stderr bytes.Buffer

	args := []string{"program", "--dir", "src", "dst"}

	_, err := newProgram(args, fs, &stdout, &stderr)
	require.ErrorIs(t, err, errArgSrcDstNotAbs)
}

func Test_Unit_ValidateOpts_InvalidHashMode_Error(t *testing.T) {
	t.Parallel()

	fs := setupTestFs()
	var stdout, stderr bytes.Buffer

	args := []string{"program", "--dir", "--hash=sha512", "/src", "/dst"}

	_, err := newProgram(args, fs, &stdout, &stderr)
	require.ErrorIs(t, err, errArgInvalidHashMode)
}

func Test_Unit_ValidateOpts_InvalidLogLevel_Error(t *testing.T) {
	t.Parallel()

	fs := setupTestFs()
	var stdout, stderr bytes.Buffer

	args := []string{"program", "--dir", "--log-level=verbose", "/src", "/dst"}

	_, err := newProgram(args, fs, &stdout, &stderr)
	require.ErrorIs(t, err, errArgInvalidLogLevel)
}

func Test_Unit_ParseArgs_YamlConfig_FillsUnsetFields(t *testing.T) {
	t.Parallel()

	fs := setupTestFs()
	var stdout, stderr bytes.Buffer

	yamlContent := "mode: dir\nsrc: /src\ndst: /dst\nignore:\n  - /src/skip\nmirror: true\nhash: strong\n"
	require.NoError(t, afero.WriteFile(fs, "/cfg.yaml", []byte(yamlContent), 0o666))

	args := []string{"program", "--config=/cfg.yaml"}

	prog, err := newProgram(args, fs, &stdout, &stderr)
	require.NoError(t, err)
	require.NotNil(t, prog)

	require.Equal(t, "dir", prog.opts.Mode)
	require.Equal(t, "/src", prog.opts.Src)
	require.Equal(t, "/dst", prog.opts.Dst)
	require.Equal(t, []string{"/src/skip"}, []string(prog.opts.Ignore))
	require.True(t, prog.opts.Mirror)
	require.Equal(t, "strong", prog.opts.HashMode)
}

func Test_Unit_ParseArgs_YamlConfig_CliFlagsOverride(t *testing.T) {
	t.Parallel()

	fs := setupTestFs()
	var stdout, stderr bytes.Buffer

	yamlContent := "mode: dir\nsrc: /yaml-src\ndst: /yaml-dst\nmirror: true\n"
	require.NoError(t, afero.WriteFile(fs, "/cfg.yaml", []byte(yamlContent), 0o666))

	args := []string{"program", "--config=/cfg.yaml", "--dir", "/cli-src", "/cli-dst"}

	prog, err := newProgram(args, fs, &stdout, &stderr)
	require.NoError(t, err)
	require.Equal(t, "/cli-src", prog.opts.Src)
	require.Equal(t, "/cli-dst", prog.opts.Dst)
}

func Test_Unit_ParseArgs_MissingYamlFile_Error(t *testing.T) {
	t.Parallel()

	fs := setupTestFs()
	var stdout, stderr bytes.Buffer

	args := []string{"program", "--config=/does-not-exist.yaml", "--dir", "/src", "/dst"}

	_, err := newProgram(args, fs, &stdout, &stderr)
	require.ErrorIs(t, err, errArgConfigMissing)
}

func Test_Unit_ReconcileConfig_SlowModeEnabled_SetsBatchAndDelay(t *testing.T) {
	t.Parallel()

	fs := setupTestFs()
	var stdout, stderr bytes.Buffer

	args := []string{"program", "--dir", "--slow-mode", "/src", "/dst"}

	prog, err := newProgram(args, fs, &stdout, &stderr)
	require.NoError(t, err)

	cfg := prog.reconcileConfig()
	require.Equal(t, slowModeBatch, cfg.SlowModeBatch)
	require.Equal(t, slowModeDelay, cfg.SlowModeDelay)
}

func Test_Unit_ReconcileConfig_SlowModeDisabled_ZeroBatch(t *testing.T) {
	t.Parallel()

	fs := setupTestFs()
	var stdout, stderr bytes.Buffer

	args := []string{"program", "--dir", "/src", "/dst"}

	prog, err := newProgram(args, fs, &stdout, &stderr)
	require.NoError(t, err)

	cfg := prog.reconcileConfig()
	require.Zero(t, cfg.SlowModeBatch)
	require.Zero(t, cfg.SlowModeDelay)
}

func Test_Unit_LogHandler_JSON_Success(t *testing.T) {
	t.Parallel()

	fs := setupTestFs()
	var stdout, stderr bytes.Buffer

	args := []string{"program", "--dir", "--json", "/src", "/dst"}

	prog, err := newProgram(args, fs, &stdout, &stderr)
	require.NoError(t, err)

	prog.log.Info("hello")
	require.Contains(t, stderr.String(), `"msg":"hello"`)
}

func Test_Unit_LogHandler_Tint_Success(t *testing.T) {
	t.Parallel()

	fs := setupTestFs()
	var stdout, stderr bytes.Buffer

	args := []string{"program", "--dir", "/src", "/dst"}

	prog, err := newProgram(args, fs, &stdout, &stderr)
	require.NoError(t, err)

	prog.log.Info("hello")
	require.Contains(t, stderr.String(), "hello")
}
