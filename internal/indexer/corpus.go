package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CorpusFile is a document found in the corpus directory.
type CorpusFile struct {
	Path    string // absolute path
	Rel     string // slash-separated path relative to the corpus root
	Size    int64
	ModTime time.Time
}

// ScanCorpus lists the regular files under dir whose extension is in exts, sorted
// by relative path. Hidden files and directories are skipped. Subdirectories are
// only walked when recursive is set. An empty exts accepts every extension.
func ScanCorpus(dir string, exts []string, recursive bool) ([]CorpusFile, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat corpus directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus is not a directory: %s", absDir)
	}

	var files []CorpusFile
	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == absDir {
			return nil
		}
		hidden := strings.HasPrefix(d.Name(), ".")
		if d.IsDir() {
			if hidden || !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden || (len(exts) > 0 && !extensionAllowed(filepath.Ext(path), exts)) {
			return nil
		}
		// Stat follows symlinks so only regular files are indexed.
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(absDir, path)
		if err != nil {
			return err
		}
		files = append(files, CorpusFile{
			Path:    path,
			Rel:     filepath.ToSlash(rel),
			Size:    finfo.Size(),
			ModTime: finfo.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk corpus: %w", err)
	}
	return files, nil
}

// Fingerprint summarizes the corpus listing. It changes when a file is added,
// removed, resized, or touched.
func Fingerprint(files []CorpusFile) string {
	h := sha256.New()
	for _, f := range files {
		h.Write([]byte(f.Rel))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(f.Size, 10)))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(f.ModTime.UnixNano(), 10)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	if extNorm == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
