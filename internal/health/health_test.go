package health_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/programme-lv/judge/internal/compiler"
	"github.com/programme-lv/judge/internal/execute"
	"github.com/programme-lv/judge/internal/health"
	"github.com/programme-lv/judge/internal/lang"
	"github.com/programme-lv/judge/internal/logging"
	"github.com/programme-lv/judge/internal/tmpstore"
	"github.com/stretchr/testify/require"
)

func shell(id string) *lang.Language {
	l := lang.New(id, "Shell "+id, id)
	l.CompileCmd = `sh -c 'if grep -q FAIL "$0"; then echo "syntax error" >&2; exit 1; fi; cp "$0" "$1"' {src} {out} {flags}`
	l.RunCmd = "sh {exe} {args}"
	return l
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	pool, err := tmpstore.New(filepath.Join(dir, "tmp"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	exec := execute.New(pool, 100*time.Millisecond, logging.Discard())
	strategy, err := execute.NewStrategy(execute.StrategyNormal, exec, execute.StrategyOptions{})
	require.NoError(t, err)

	langs := []*lang.Language{shell("ok"), shell("wrong"), shell("broken"), shell("crash"), shell("none")}
	comp, err := compiler.New(lang.NewRegistry(langs...), exec, compiler.Options{
		CacheDir: filepath.Join(dir, "cache"),
		Timeout:  5 * time.Second,
	}, logging.Discard())
	require.NoError(t, err)

	c := health.New(comp, strategy, exec, map[string]string{
		"ok":     "echo hello\n",
		"wrong":  "echo bye\n",
		"broken": "FAIL\n",
		"crash":  "exit 3\n",
	}, filepath.Join(dir, "samples"), logging.Discard())

	rows := c.Check(context.Background(), langs)
	require.Len(t, rows, 5)

	require.Equal(t, health.Okay, rows[0].Level, rows[0].Message)
	require.Contains(t, rows[0].Message, "compiled in")

	require.Equal(t, health.Error, rows[1].Level)
	require.Contains(t, rows[1].Message, `"bye"`)

	require.Equal(t, health.Error, rows[2].Level)
	require.Contains(t, rows[2].Message, "compilation failed")

	require.Equal(t, health.Error, rows[3].Level)
	require.Contains(t, rows[3].Message, "code 3")

	require.Equal(t, health.Warn, rows[4].Level)
	require.Equal(t, "Shell none", rows[4].Unit)

	used, _ := pool.Stats()
	require.Zero(t, used)
}

func TestLevelString(t *testing.T) {
	require.Equal(t, "OKAY", health.Okay.String())
	require.Equal(t, "WARN", health.Warn.String())
	require.Equal(t, "ERROR", health.Error.String())
}
