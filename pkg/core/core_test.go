package core

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hfa/pkg/archerr"
	"hfa/pkg/container"
)

// workerEnv makes the test binary act as a process backend worker.
const workerEnv = "HFA_TEST_WORKER"

func TestMain(m *testing.M) {
	if os.Getenv(workerEnv) == "1" {
		os.Exit(WorkerMain(os.Args[1:], os.Stdin, os.Stderr))
	}
	os.Exit(m.Run())
}

var backends = []BackendKind{BackendThread, BackendProcess}

func testOptions(t *testing.T, backend BackendKind, workers int) Options {
	t.Helper()
	opts := DefaultOptions()
	opts.Workers = workers
	opts.Backend = backend
	if backend == BackendProcess {
		exe, err := os.Executable()
		require.NoError(t, err)
		t.Setenv(workerEnv, "1")
		opts.WorkerCommand = []string{exe}
	}
	return opts
}

func writeFiles(t *testing.T, dir string, files map[string][]byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
	}
}

func assertFiles(t *testing.T, dir string, want map[string][]byte) {
	t.Helper()
	for name, data := range want {
		got, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.True(t, bytes.Equal(data, got), "%s differs", name)
	}
}

func entryCount(t *testing.T, path string) uint32 {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(b), container.HeaderSize)
	assert.Equal(t, container.Magic, string(b[:4]))
	return binary.LittleEndian.Uint32(b[4:8])
}

func assertNoParts(t *testing.T, dir string) {
	t.Helper()
	parts, err := filepath.Glob(filepath.Join(dir, container.StagePrefix+"*"))
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestTwoFileScenario(t *testing.T) {
	files := map[string][]byte{
		"a.txt": []byte("aaab"),
		"b.txt": []byte("bbbbccca"),
	}
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			src := filepath.Join(t.TempDir(), "in")
			writeFiles(t, src, files)

			archive := filepath.Join(src, container.DefaultName)
			r, err := Compress(src, archive, testOptions(t, backend, 2))
			require.NoError(t, err)
			assert.Equal(t, Done, r.State)
			assert.Equal(t, 2, r.Succeeded)
			assert.Equal(t, uint64(12), r.Bytes)
			assert.Equal(t, uint32(2), entryCount(t, archive))
			assertNoParts(t, src)

			out := filepath.Join(t.TempDir(), "out")
			r, err = Decompress(out, archive, testOptions(t, backend, 3))
			require.NoError(t, err)
			assert.Equal(t, Done, r.State)
			assert.Equal(t, 2, r.Succeeded)
			assertFiles(t, out, files)

			ents, err := os.ReadDir(out)
			require.NoError(t, err)
			assert.Len(t, ents, 2)
		})
	}
}

func randomFiles(n int) map[string][]byte {
	rng := rand.New(rand.NewSource(7))
	files := make(map[string][]byte, n)
	for i := 0; i < n; i++ {
		data := make([]byte, rng.Intn(4096))
		alphabet := 1 + rng.Intn(256)
		for j := range data {
			data[j] = byte(rng.Intn(alphabet))
		}
		files[fmt.Sprintf("f%02d.txt", i)] = data
	}
	files["empty.txt"] = nil
	files["single.txt"] = bytes.Repeat([]byte{'a'}, 1000)
	return files
}

func TestOutputIndependentOfWorkers(t *testing.T) {
	files := randomFiles(12)
	src := t.TempDir()
	writeFiles(t, src, files)

	var reference []byte
	for _, backend := range backends {
		for _, workers := range []int{1, 2, len(files) + 5} {
			name := fmt.Sprintf("%s-%d", backend, workers)
			t.Run(name, func(t *testing.T) {
				archive := filepath.Join(t.TempDir(), container.DefaultName)
				r, err := Compress(src, archive, testOptions(t, backend, workers))
				require.NoError(t, err)
				assert.Equal(t, len(files), r.Succeeded)

				got, err := os.ReadFile(archive)
				require.NoError(t, err)
				if reference == nil {
					reference = got
				}
				assert.True(t, bytes.Equal(reference, got), "container differs from the first run")

				out := t.TempDir()
				_, err = Decompress(out, archive, testOptions(t, backend, workers))
				require.NoError(t, err)
				assertFiles(t, out, files)
			})
		}
	}
}

func TestEntriesSortedByName(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string][]byte{
		"c.txt": []byte("ccc"),
		"a.txt": []byte("aaa"),
		"b.md":  []byte("not text"),
		"b.txt": []byte("bbb"),
	})
	require.NoError(t, os.Mkdir(filepath.Join(src, "sub.txt"), 0755))

	archive := filepath.Join(src, container.DefaultName)
	_, err := Compress(src, archive, testOptions(t, BackendThread, 3))
	require.NoError(t, err)

	metas, err := container.Index(archive)
	require.NoError(t, err)
	var names []string
	for _, m := range metas {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, names)

	// an empty suffix takes every file but the container itself
	opts := testOptions(t, BackendThread, 3)
	opts.Suffix = ""
	_, err = Compress(src, archive, opts)
	require.NoError(t, err)
	metas, err = container.Index(archive)
	require.NoError(t, err)
	names = names[:0]
	for _, m := range metas {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"a.txt", "b.md", "b.txt", "c.txt"}, names)
}

func TestEmptyDirectory(t *testing.T) {
	src := t.TempDir()
	archive := filepath.Join(t.TempDir(), "empty.hfa")
	r, err := Compress(src, archive, testOptions(t, BackendThread, 2))
	require.NoError(t, err)
	assert.Equal(t, Done, r.State)
	assert.Zero(t, r.Jobs)
	assert.Equal(t, uint32(0), entryCount(t, archive))

	out := t.TempDir()
	r, err = Decompress(out, archive, testOptions(t, BackendThread, 2))
	require.NoError(t, err)
	assert.Zero(t, r.Jobs)
}

func TestDefaultArchiveName(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string][]byte{"a.txt": []byte("aaab")})

	r, err := Compress(src, "", testOptions(t, BackendThread, 1))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(src, container.DefaultName), r.Output)
	assert.Equal(t, uint32(1), entryCount(t, r.Output))

	// decompressing into the same directory finds the default archive
	require.NoError(t, os.Remove(filepath.Join(src, "a.txt")))
	_, err = Decompress(src, "", testOptions(t, BackendThread, 1))
	require.NoError(t, err)
	assertFiles(t, src, map[string][]byte{"a.txt": []byte("aaab")})
}

func TestPartialCompressionFailure(t *testing.T) {
	files := map[string][]byte{
		"a.txt": []byte("aaab"),
		"c.txt": []byte("bbbbccca"),
	}
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			src := t.TempDir()
			writeFiles(t, src, files)
			// a dangling link is listed but cannot be read
			require.NoError(t, os.Symlink(filepath.Join(src, "missing"), filepath.Join(src, "b.txt")))

			archive := filepath.Join(t.TempDir(), container.DefaultName)
			e, err := NewEngine(testOptions(t, backend, 2))
			require.NoError(t, err)
			r, err := e.Compress(src, archive)
			require.Error(t, err)
			assert.ErrorIs(t, err, archerr.ErrWorkerFailure)
			assert.ErrorIs(t, err, archerr.ErrIO)
			assert.Equal(t, Failed, e.State())
			assert.Equal(t, Failed, r.State)
			assert.Equal(t, 3, r.Jobs)
			assert.Equal(t, 2, r.Succeeded)
			require.Equal(t, 1, r.Failed())
			assert.Equal(t, "b.txt", r.Failures[0].Name)
			assert.Equal(t, 1, r.Failures[0].Index)
			assertNoParts(t, src)

			assert.Equal(t, uint32(2), entryCount(t, archive))
			out := t.TempDir()
			_, err = Decompress(out, archive, testOptions(t, backend, 2))
			require.NoError(t, err)
			assertFiles(t, out, files)
		})
	}
}

func TestRemoveSourcesOnlyOnSuccess(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string][]byte{"a.txt": []byte("aaab"), "keep.md": []byte("x")})
	archive := filepath.Join(t.TempDir(), container.DefaultName)

	opts := testOptions(t, BackendThread, 2)
	opts.RemoveSources = true
	_, err := Compress(src, archive, opts)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(src, "a.txt"))
	assert.FileExists(t, filepath.Join(src, "keep.md"))

	src2 := t.TempDir()
	writeFiles(t, src2, map[string][]byte{"a.txt": []byte("aaab")})
	require.NoError(t, os.Symlink(filepath.Join(src2, "missing"), filepath.Join(src2, "b.txt")))
	_, err = Compress(src2, archive, opts)
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(src2, "a.txt"))
}

func TestRemoveArchiveOnSuccess(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string][]byte{"a.txt": []byte("aaab")})
	archive := filepath.Join(t.TempDir(), container.DefaultName)
	_, err := Compress(src, archive, testOptions(t, BackendThread, 1))
	require.NoError(t, err)

	opts := testOptions(t, BackendThread, 1)
	opts.RemoveArchive = true
	_, err = Decompress(t.TempDir(), archive, opts)
	require.NoError(t, err)
	assert.NoFileExists(t, archive)
}

func TestDecompressMalformedContainer(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "bad.hfa")
	require.NoError(t, os.WriteFile(archive, []byte("NOPE\x01\x00\x00\x00"), 0644))

	e, err := NewEngine(testOptions(t, BackendThread, 2))
	require.NoError(t, err)
	r, err := e.Decompress(t.TempDir(), archive)
	assert.ErrorIs(t, err, archerr.ErrMalformedContainer)
	assert.NotErrorIs(t, err, archerr.ErrWorkerFailure)
	assert.Equal(t, Failed, r.State)
	assert.Zero(t, r.Jobs)

	_, err = e.Decompress(t.TempDir(), filepath.Join(t.TempDir(), "missing.hfa"))
	assert.ErrorIs(t, err, archerr.ErrIO)
}

func TestDecompressRejectsUnsafeName(t *testing.T) {
	good, err := container.NewEntry("a.txt", []byte("aaab"))
	require.NoError(t, err)
	evil, err := container.NewEntry("../evil.txt", []byte("gotcha"))
	require.NoError(t, err)
	archive := filepath.Join(t.TempDir(), container.DefaultName)
	require.NoError(t, container.Write(archive, []*container.Entry{good, evil}))

	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			root := t.TempDir()
			out := filepath.Join(root, "out")
			r, err := Decompress(out, archive, testOptions(t, backend, 2))
			require.Error(t, err)
			assert.ErrorIs(t, err, archerr.ErrMalformedContainer)
			require.Equal(t, 1, r.Failed())
			assert.Equal(t, "../evil.txt", r.Failures[0].Name)
			assertFiles(t, out, map[string][]byte{"a.txt": []byte("aaab")})
			assert.NoFileExists(t, filepath.Join(root, "evil.txt"))
		})
	}
}

func TestListInputsMissingDir(t *testing.T) {
	_, err := ListInputs(filepath.Join(t.TempDir(), "nope"), ".txt", "")
	assert.ErrorIs(t, err, archerr.ErrIO)

	e, err := NewEngine(testOptions(t, BackendThread, 1))
	require.NoError(t, err)
	r, err := e.Compress(filepath.Join(t.TempDir(), "nope"), "")
	assert.ErrorIs(t, err, archerr.ErrIO)
	assert.Equal(t, Failed, r.State)
}

func TestUnknownBackend(t *testing.T) {
	_, err := NewEngine(Options{Backend: "fibers"})
	assert.Error(t, err)

	_, err = ParseBackend("fibers")
	assert.Error(t, err)
	k, err := ParseBackend("process")
	require.NoError(t, err)
	assert.Equal(t, BackendProcess, k)
}
