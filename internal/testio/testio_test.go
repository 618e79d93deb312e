package testio_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/programme-lv/judge/internal/logging"
	"github.com/programme-lv/judge/internal/testio"
	"github.com/programme-lv/judge/internal/tmpstore"
	"github.com/stretchr/testify/require"
)

func newMaterializer(t *testing.T) (*testio.Materializer, *tmpstore.Pool) {
	pool, err := tmpstore.New(t.TempDir(), logging.Discard())
	require.NoError(t, err)
	return testio.NewMaterializer(pool), pool
}

func TestMaterializeInline(t *testing.T) {
	m, pool := newMaterializer(t)

	path, release, err := m.Materialize(testio.Inline("1 2\n"))
	require.NoError(t, err)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "1 2\n", string(b))

	release()
	used, _ := pool.Stats()
	require.Equal(t, 0, used)
}

func TestMaterializePlainFileIsUsedAsIs(t *testing.T) {
	m, _ := newMaterializer(t)
	src := filepath.Join(t.TempDir(), "1.in")
	require.NoError(t, os.WriteFile(src, []byte("5\n"), 0644))

	path, release, err := m.Materialize(testio.File(src))
	require.NoError(t, err)
	defer release()
	require.Equal(t, src, path)
}

func TestMaterializeZstd(t *testing.T) {
	m, _ := newMaterializer(t)
	src := filepath.Join(t.TempDir(), "1.in.zst")

	f, err := os.Create(src)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	_, err = enc.Write([]byte("315941512 -119267504\n"))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	path, release, err := m.Materialize(testio.File(src))
	require.NoError(t, err)
	defer release()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "315941512 -119267504\n", string(b))

	s, err := testio.Read(testio.File(src))
	require.NoError(t, err)
	require.Equal(t, "315941512 -119267504\n", s)
}

func TestTryInline(t *testing.T) {
	m, pool := newMaterializer(t)

	small := pool.Create()
	require.NoError(t, os.WriteFile(small, []byte("ok"), 0644))
	x, err := m.TryInline(small, 16)
	require.NoError(t, err)
	require.True(t, x.IsInline())
	require.Equal(t, "ok", *x.Data)

	big := pool.Create()
	require.NoError(t, os.WriteFile(big, []byte(strings.Repeat("a", 32)), 0644))
	x, err = m.TryInline(big, 16)
	require.NoError(t, err)
	require.False(t, x.IsInline())
	require.Equal(t, big, x.Path)
}
