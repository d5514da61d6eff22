package graph

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/gnana997/migr8/pkg/parser"
	"github.com/gnana997/migr8/pkg/util"
)

// DefaultExclude lists directories that never hold project sources.
var DefaultExclude = []string{
	"node_modules/**",
	"**/node_modules/**",
	".git/**",
	"dist/**",
	"build/**",
	".next/**",
	"coverage/**",
	"out/**",
	".migr8/**",
}

// DefaultInclude matches every file that can contain markup.
var DefaultInclude = []string{
	"**/*.tsx",
	"**/*.jsx",
	"**/*.js",
	"**/*.mjs",
	"**/*.cjs",
}

// ValidatePatterns rejects malformed globs up front.
func ValidatePatterns(include, exclude []string) error {
	for _, pattern := range exclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclude pattern: %s", pattern)
		}
	}
	for _, pattern := range include {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid include pattern: %s", pattern)
		}
	}
	return nil
}

// MatchesAny reports whether the slash-separated relPath matches one of
// patterns.
func MatchesAny(patterns []string, relPath string) bool {
	for _, pattern := range patterns {
		if matched, _ := doublestar.Match(pattern, relPath); matched {
			return true
		}
	}
	return false
}

// DiscoverFiles walks rootDir applying include/exclude globs and keeps only
// files whose grammar supports markup. Returns sorted absolute paths.
func DiscoverFiles(rootDir string, include, exclude []string) ([]string, error) {
	if err := ValidatePatterns(include, exclude); err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("root %s: %w", rootDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", rootDir)
	}

	var files []string
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Continue walking on errors.
		}

		relPath, err := filepath.Rel(absRoot, p)
		if err != nil {
			relPath = p
		}
		relPath = filepath.ToSlash(relPath)
		if relPath == "." {
			return nil
		}

		if MatchesAny(exclude, relPath) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		if len(include) > 0 && !MatchesAny(include, relPath) {
			return nil
		}
		if !parser.CanContainMarkup(p) {
			return nil
		}

		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// DefaultMaxFileSize is the large-codebase prefilter's size ceiling.
const DefaultMaxFileSize = 512 * 1024

// prefilterNamePatterns are base-name globs for files that rarely hold
// production usages.
var prefilterNamePatterns = []string{
	"*.test.*",
	"*.spec.*",
	"*.stories.*",
	"*.story.*",
	"*.docs.*",
}

var prefilterDirs = []string{"__tests__", "__mocks__", "__stories__", "docs", "stories"}

// Prefilter cheaply discards files that are unlikely to contain usages of
// the tracked packages before they are parsed.
//
// This is a best-effort throughput heuristic, not a correctness guarantee:
// a skipped file may still contain usages (for example a story file that
// production code imports), and such usages will be missing from the graph.
type Prefilter struct {
	MaxFileSize int64
	Packages    []string
}

// Skip reports whether path should be dropped, with a short reason.
func (p Prefilter) Skip(absPath, relPath string) (bool, string) {
	base := path.Base(relPath)
	for _, pattern := range prefilterNamePatterns {
		if matched, _ := doublestar.Match(pattern, base); matched {
			return true, "test/story/doc file"
		}
	}
	for _, dir := range prefilterDirs {
		if matched, _ := doublestar.Match("**/"+dir+"/**", relPath); matched {
			return true, "test/story/doc directory"
		}
		if matched, _ := doublestar.Match(dir+"/**", relPath); matched {
			return true, "test/story/doc directory"
		}
	}

	maxSize := p.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	info, err := os.Stat(absPath)
	if err != nil {
		// Let the parse step report the read failure.
		return false, ""
	}
	if info.Size() > maxSize {
		return true, "oversized file"
	}

	reason := ""
	_, err = util.ScanFile(absPath, func(data []byte) bool {
		if bytes.IndexByte(data, '<') < 0 {
			reason = "no markup"
			return false
		}
		if len(p.Packages) == 0 {
			return true
		}
		for _, pkg := range p.Packages {
			if bytes.Contains(data, []byte(pkg)) {
				return true
			}
		}
		reason = "no tracked package"
		return false
	})
	if err != nil {
		return false, ""
	}
	return reason != "", reason
}
