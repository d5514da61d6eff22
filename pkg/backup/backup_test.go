package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/migr8/pkg/util"
)

type project struct {
	root string
	svc  *Service
}

func newProject(t *testing.T, files map[string]string) *project {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	svc := NewService(root, filepath.Join(root, ".migr8", "backups"), util.QuietLogger())
	return &project{root: root, svc: svc}
}

func (p *project) path(rel string) string {
	return filepath.Join(p.root, filepath.FromSlash(rel))
}

func (p *project) write(t *testing.T, rel, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(p.path(rel), []byte(content), 0o644))
}

func (p *project) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(p.path(rel))
	require.NoError(t, err)
	return string(data)
}

func TestCreateBackup(t *testing.T) {
	p := newProject(t, map[string]string{"src/a.tsx": "a", "src/b.tsx": "bb"})

	m, err := p.svc.CreateBackup([]string{"src/a.tsx", p.path("src/b.tsx"), "src/a.tsx"}, "before migrate")
	require.NoError(t, err)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "before migrate", m.Note)
	require.Len(t, m.Files, 2, "duplicates collapse")
	assert.Equal(t, "src/a.tsx", m.Files[0].RelPath)
	assert.Equal(t, int64(2), m.Files[1].Size)
	assert.Equal(t, hash([]byte("a")), m.Files[0].SHA256)
	assert.FileExists(t, filepath.Join(p.svc.Dir(), m.ID, manifestFile))

	loaded, err := p.svc.Load(m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Files, loaded.Files)
	assert.NoError(t, p.svc.Verify(m.ID))
}

func TestCreateBackup_MissingFileLeavesNothing(t *testing.T) {
	p := newProject(t, map[string]string{"a.tsx": "a"})

	_, err := p.svc.CreateBackup([]string{"a.tsx", "gone.tsx"}, "")
	require.Error(t, err)

	list, err := p.svc.ListBackups()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListBackups_NewestFirst(t *testing.T) {
	p := newProject(t, map[string]string{"a.tsx": "a"})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := range 3 {
		p.svc.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		m, err := p.svc.CreateBackup([]string{"a.tsx"}, "")
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}
	require.NoError(t, os.MkdirAll(filepath.Join(p.svc.Dir(), "junk"), 0o755))

	list, err := p.svc.ListBackups()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestListBackups_NoDirectory(t *testing.T) {
	svc := NewService(t.TempDir(), filepath.Join(t.TempDir(), "none"), util.QuietLogger())
	list, err := svc.ListBackups()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRestore(t *testing.T) {
	p := newProject(t, map[string]string{
		"migrated.tsx":  "old m",
		"edited.tsx":    "old e",
		"untouched.tsx": "old u",
		"deleted.tsx":   "old d",
	})
	m, err := p.svc.CreateBackup([]string{"migrated.tsx", "edited.tsx", "untouched.tsx", "deleted.tsx"}, "")
	require.NoError(t, err)

	written := map[string][]byte{
		p.path("migrated.tsx"): []byte("new m"),
		p.path("edited.tsx"):   []byte("new e"),
		p.path("deleted.tsx"):  []byte("new d"),
	}
	for path, data := range written {
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}
	require.NoError(t, p.svc.Finalize(m.ID, written))

	p.write(t, "edited.tsx", "new e plus a hand edit")
	require.NoError(t, os.Remove(p.path("deleted.tsx")))

	res, err := p.svc.Restore(m.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"migrated.tsx", "untouched.tsx", "deleted.tsx"}, res.Restored)
	assert.Equal(t, []string{"edited.tsx"}, res.Conflicted)
	assert.Empty(t, res.Failed)

	assert.Equal(t, "old m", p.read(t, "migrated.tsx"))
	assert.Equal(t, "old d", p.read(t, "deleted.tsx"))
	assert.Equal(t, "new e plus a hand edit", p.read(t, "edited.tsx"))
}

func TestRestore_UnfinalizedChangeIsConflict(t *testing.T) {
	p := newProject(t, map[string]string{"a.tsx": "old"})
	m, err := p.svc.CreateBackup([]string{"a.tsx"}, "")
	require.NoError(t, err)
	p.write(t, "a.tsx", "changed")

	res, err := p.svc.Restore(m.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.tsx"}, res.Conflicted)
	assert.Equal(t, "changed", p.read(t, "a.tsx"))
}

func TestRestore_CorruptCopyFails(t *testing.T) {
	p := newProject(t, map[string]string{"a.tsx": "old"})
	m, err := p.svc.CreateBackup([]string{"a.tsx"}, "")
	require.NoError(t, err)
	require.NoError(t, p.svc.Finalize(m.ID, map[string][]byte{p.path("a.tsx"): []byte("new")}))
	p.write(t, "a.tsx", "new")

	stored := filepath.Join(p.svc.Dir(), m.ID, filepath.FromSlash(m.Files[0].Stored))
	require.NoError(t, os.WriteFile(stored, []byte("tampered"), 0o644))

	assert.ErrorContains(t, p.svc.Verify(m.ID), "checksum mismatch")

	res, err := p.svc.Restore(m.ID)
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "a.tsx", res.Failed[0].Path)
	assert.Equal(t, "new", p.read(t, "a.tsx"))
}

func TestUnknownBackup(t *testing.T) {
	p := newProject(t, nil)
	for _, id := range []string{"nope", "", "../escape"} {
		_, err := p.svc.Restore(id)
		assert.ErrorIs(t, err, ErrNotFound, id)
	}
	assert.ErrorIs(t, p.svc.Delete("nope"), ErrNotFound)
}

func TestDelete(t *testing.T) {
	p := newProject(t, map[string]string{"a.tsx": "a"})
	m, err := p.svc.CreateBackup([]string{"a.tsx"}, "")
	require.NoError(t, err)

	require.NoError(t, p.svc.Delete(m.ID))
	_, err = p.svc.Load(m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
