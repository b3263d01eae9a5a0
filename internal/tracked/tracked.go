package tracked

import (
	"os"
	"path/filepath"
)

// Kind distinguishes how a tracked file is synchronized.
type Kind string

const (
	// WholeFile entries are replaced verbatim from the reference copy.
	WholeFile Kind = "whole-file"
	// StructuredField entries are patched key-by-key inside the document.
	StructuredField Kind = "structured-field"
)

// File describes one tracked path, relative to both the reference snapshot
// and the destination directory.
type File struct {
	Path string
	Kind Kind
	Keys []string // dotted key paths, structured-field entries only
}

// Whole builds whole-file descriptors for the given relative paths.
func Whole(paths ...string) []File {
	files := make([]File, 0, len(paths))
	for _, path := range paths {
		files = append(files, File{Path: path, Kind: WholeFile})
	}
	return files
}

// Structured builds a structured-field descriptor for the given relative
// path and dotted key paths.
func Structured(path string, keys ...string) File {
	return File{Path: path, Kind: StructuredField, Keys: keys}
}

// Order returns files with every whole-file entry ahead of every
// structured-field entry, relative order otherwise preserved. Version
// fields describe the content, so they are reconciled after it.
func Order(files []File) []File {
	ordered := make([]File, 0, len(files))
	for _, f := range files {
		if f.Kind != StructuredField {
			ordered = append(ordered, f)
		}
	}
	for _, f := range files {
		if f.Kind == StructuredField {
			ordered = append(ordered, f)
		}
	}
	return ordered
}

// Discover walks the reference snapshot and returns the relative paths of
// all regular files, skipping the git bookkeeping directory and the given
// relative paths. Other dotfiles (.editorconfig and friends) are template
// content and are kept.
func Discover(refDir string, exclude []string) ([]string, error) {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[filepath.ToSlash(e)] = true
	}

	var files []string
	err := filepath.Walk(refDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == refDir {
			return nil
		}

		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(refDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if skip[rel] {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}
