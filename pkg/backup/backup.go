// Package backup keeps copies of files before a migration writes them and
// restores them on request.
//
// Each backup lives in its own directory under the backup root:
//
//	<dir>/<id>/manifest.json
//	<dir>/<id>/files/0000, 0001, ...
//
// The manifest records the path, size and sha256 of every original, and,
// once the run is over, the sha256 of what the migration wrote. Restore uses
// both hashes to tell a migrated file from one edited afterwards.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gnana997/migr8/pkg/errs"
	"github.com/gnana997/migr8/pkg/util"
)

const manifestFile = "manifest.json"

// ErrNotFound is returned for an unknown backup id.
var ErrNotFound = errors.New("backup not found")

// Entry is one backed-up file.
type Entry struct {
	Path         string      `json:"path"`
	RelPath      string      `json:"rel_path"`
	Stored       string      `json:"stored"`
	Size         int64       `json:"size"`
	Mode         fs.FileMode `json:"mode"`
	SHA256       string      `json:"sha256"`
	OutputSHA256 string      `json:"output_sha256,omitempty"`
}

// Manifest describes one backup.
type Manifest struct {
	ID          string    `json:"id"`
	Root        string    `json:"root"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	FinalizedAt time.Time `json:"finalized_at,omitempty"`
	Files       []Entry   `json:"files"`
}

// RestoreFailure is a file that could not be restored.
type RestoreFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// RestoreResult lists what Restore did per file.
type RestoreResult struct {
	Restored   []string         `json:"restored"`
	Failed     []RestoreFailure `json:"failed"`
	Conflicted []string         `json:"conflicted"`
}

// Service stores backups under one directory.
type Service struct {
	dir    string
	root   string
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a service that keeps backups of files under root in
// dir. A nil logger uses slog.Default().
func NewService(root, dir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{dir: dir, root: root, logger: logger, now: time.Now}
}

// Dir returns the backup root directory.
func (s *Service) Dir() string { return s.dir }

// CreateBackup copies paths into a new backup and returns its manifest.
// Paths may be absolute or relative to the project root.
func (s *Service) CreateBackup(paths []string, note string) (*Manifest, error) {
	m := &Manifest{
		ID:        uuid.NewString(),
		Root:      s.root,
		Note:      note,
		CreatedAt: s.now().UTC(),
	}
	base := filepath.Join(s.dir, m.ID)
	if err := os.MkdirAll(filepath.Join(base, "files"), 0o755); err != nil {
		return nil, errs.NewIOError("create backup", base, err)
	}

	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		abs := p
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(s.root, abs)
		}
		abs = filepath.Clean(abs)
		if seen[abs] {
			continue
		}
		seen[abs] = true

		data, err := os.ReadFile(abs)
		if err != nil {
			os.RemoveAll(base)
			return nil, errs.NewIOError("read", abs, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			os.RemoveAll(base)
			return nil, errs.NewIOError("stat", abs, err)
		}

		stored := filepath.ToSlash(filepath.Join("files", fmt.Sprintf("%04d", len(m.Files))))
		if err := os.WriteFile(filepath.Join(base, filepath.FromSlash(stored)), data, 0o644); err != nil {
			os.RemoveAll(base)
			return nil, errs.NewIOError("write backup", abs, err)
		}
		m.Files = append(m.Files, Entry{
			Path:    abs,
			RelPath: s.rel(abs),
			Stored:  stored,
			Size:    int64(len(data)),
			Mode:    info.Mode().Perm(),
			SHA256:  hash(data),
		})
	}

	if err := s.save(m); err != nil {
		os.RemoveAll(base)
		return nil, err
	}
	s.logger.Info("backup created", "id", m.ID, "files", len(m.Files))
	return m, nil
}

// Finalize records the content the migration wrote for each path. Paths not
// in written were left untouched.
func (s *Service) Finalize(id string, written map[string][]byte) error {
	m, err := s.Load(id)
	if err != nil {
		return err
	}
	for i := range m.Files {
		if data, ok := written[m.Files[i].Path]; ok {
			m.Files[i].OutputSHA256 = hash(data)
		}
	}
	m.FinalizedAt = s.now().UTC()
	return s.save(m)
}

// Load reads the manifest of backup id.
func (s *Service) Load(id string) (*Manifest, error) {
	if id == "" || filepath.Base(id) != id {
		return nil, fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, id, manifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, errs.NewIOError("read manifest", id, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", id, err)
	}
	return &m, nil
}

// ListBackups returns every readable backup, newest first. Unreadable
// manifests are logged and skipped.
func (s *Service) ListBackups() ([]*Manifest, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewIOError("list backups", s.dir, err)
	}

	var out []*Manifest
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m, err := s.Load(e.Name())
		if err != nil {
			s.logger.Warn("skipping unreadable backup", "id", e.Name(), "error", err)
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Verify checks every stored copy of backup id against its recorded hash.
func (s *Service) Verify(id string) error {
	m, err := s.Load(id)
	if err != nil {
		return err
	}
	var problems []error
	for _, e := range m.Files {
		if _, err := s.stored(m, e); err != nil {
			problems = append(problems, err)
		}
	}
	return errors.Join(problems...)
}

// Restore puts the originals of backup id back in place.
//
// A file is restored when it still holds what the migration wrote, already
// holds the original, or no longer exists. A file holding anything else was
// edited after the migration and is reported as conflicted and left alone.
func (s *Service) Restore(id string) (*RestoreResult, error) {
	m, err := s.Load(id)
	if err != nil {
		return nil, err
	}

	res := &RestoreResult{}
	for _, e := range m.Files {
		original, err := s.stored(m, e)
		if err != nil {
			res.Failed = append(res.Failed, RestoreFailure{Path: e.RelPath, Reason: err.Error()})
			continue
		}

		current, err := os.ReadFile(e.Path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			res.Failed = append(res.Failed, RestoreFailure{Path: e.RelPath, Reason: err.Error()})
			continue
		default:
			h := hash(current)
			if h == e.SHA256 {
				res.Restored = append(res.Restored, e.RelPath)
				continue
			}
			if e.OutputSHA256 == "" || h != e.OutputSHA256 {
				res.Conflicted = append(res.Conflicted, e.RelPath)
				continue
			}
		}

		if err := os.MkdirAll(filepath.Dir(e.Path), 0o755); err != nil {
			res.Failed = append(res.Failed, RestoreFailure{Path: e.RelPath, Reason: err.Error()})
			continue
		}
		if err := util.WriteFileAtomic(e.Path, original, e.Mode); err != nil {
			res.Failed = append(res.Failed, RestoreFailure{Path: e.RelPath, Reason: err.Error()})
			continue
		}
		res.Restored = append(res.Restored, e.RelPath)
	}

	s.logger.Info("backup restored", "id", id,
		"restored", len(res.Restored), "failed", len(res.Failed), "conflicted", len(res.Conflicted))
	return res, nil
}

// Delete removes backup id.
func (s *Service) Delete(id string) error {
	if _, err := s.Load(id); err != nil {
		return err
	}
	return errs.NewIOError("delete backup", id, os.RemoveAll(filepath.Join(s.dir, id)))
}

func (s *Service) stored(m *Manifest, e Entry) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, m.ID, filepath.FromSlash(e.Stored)))
	if err != nil {
		return nil, errs.NewIOError("read backup copy", e.RelPath, err)
	}
	if hash(data) != e.SHA256 {
		return nil, fmt.Errorf("backup copy of %s is corrupt: checksum mismatch", e.RelPath)
	}
	return data, nil
}

func (s *Service) save(m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return util.WriteFileAtomic(filepath.Join(s.dir, m.ID, manifestFile), data, 0o644)
}

func (s *Service) rel(abs string) string {
	if s.root == "" {
		return filepath.ToSlash(abs)
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

func hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
