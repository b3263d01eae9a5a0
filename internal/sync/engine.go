package sync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/core-unit-bioinformatics/templsync/internal/checksum"
	"github.com/core-unit-bioinformatics/templsync/internal/git"
	"github.com/core-unit-bioinformatics/templsync/internal/prompt"
	"github.com/core-unit-bioinformatics/templsync/internal/pyproject"
	"github.com/core-unit-bioinformatics/templsync/internal/syncerr"
	"github.com/core-unit-bioinformatics/templsync/internal/tracked"
)

// externalSubdir receives the tracked files in projects that are not
// themselves template instances.
const externalSubdir = "cubi"

// Engine drives one synchronization run against a template repository.
type Engine struct {
	git    git.Client
	ask    prompt.Asker
	logger *slog.Logger
	dryRun bool
}

// NewEngine creates a sync engine. In dry-run mode the engine never writes,
// never prompts and never touches the network.
func NewEngine(gitClient git.Client, asker prompt.Asker, logger *slog.Logger, dryRun bool) *Engine {
	return &Engine{
		git:    gitClient,
		ask:    asker,
		logger: logger,
		dryRun: dryRun,
	}
}

// Source identifies the template repository snapshot to sync against.
type Source struct {
	URL        string
	Revision   string // branch, tag or commit requested by the operator
	MirrorDir  string // where the local mirror lives
	DefaultRef string // branch the mirror is parked on after the run
}

// Options tune one run.
type Options struct {
	External   bool     // place files in the cubi/ subfolder of the project
	KeepMirror bool     // retain the mirror tree after the run
	Discover   bool     // extend the worklist with everything in the mirror
	Exclude    []string // relative paths discovery must skip
	Sentinel   string   // file whose absence suggests an uninitialized target
}

// fieldDiff is one stale version field inside a structured document.
type fieldDiff struct {
	key   string
	local string
	ref   string
}

// Run synchronizes projectDir against the reference snapshot. Files are
// decided one by one in order, whole files before structured documents;
// the operator confirms every change. The returned report lists every
// decision even when Run aborts early.
func (e *Engine) Run(ctx context.Context, src Source, projectDir string, files []tracked.File, opts Options) (*Report, error) {
	e.logger.Info("starting template sync",
		"repo", src.URL,
		"rev", src.Revision,
		"project", projectDir,
		"dry_run", e.dryRun)

	info, err := os.Stat(projectDir)
	if err != nil || !info.IsDir() {
		return nil, syncerr.TargetMissing(projectDir)
	}

	report := &Report{}

	if e.dryRun {
		e.logger.Info("THIS IS A DRY RUN, no files will be changed")
		// Dry-run must not clone or fetch, so an existing mirror is
		// required and used as-is.
		if err := e.git.VerifyMirror(src.MirrorDir); err != nil {
			return nil, err
		}
		e.logger.Info("[dry-run] would refresh reference mirror", "mirror", src.MirrorDir, "rev", src.Revision)
	} else {
		commit, err := e.git.EnsureMirror(ctx, src.URL, src.Revision, src.MirrorDir)
		if err != nil {
			return nil, err
		}
		report.Commit = commit
		e.logger.Info("reference mirror ready", "mirror", src.MirrorDir, "commit", commit)
	}

	destDir := projectDir
	if opts.External {
		destDir = filepath.Join(projectDir, externalSubdir)
		if !e.dryRun {
			if err := os.MkdirAll(destDir, 0755); err != nil {
				return nil, syncerr.IO(destDir, err)
			}
		}
	}

	if opts.Sentinel != "" {
		proceed, err := e.confirmSentinel(destDir, opts.Sentinel)
		if err != nil {
			return report, err
		}
		if !proceed {
			return report, fmt.Errorf("%s does not look like a template instance (no %s), aborting", destDir, opts.Sentinel)
		}
	}

	worklist, err := e.buildWorklist(src.MirrorDir, files, opts)
	if err != nil {
		return report, err
	}

	for _, f := range worklist {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		var decErr error
		switch f.Kind {
		case tracked.StructuredField:
			decErr = e.decideStructured(f, src.MirrorDir, destDir, report)
		default:
			decErr = e.decideWholeFile(f.Path, src.MirrorDir, destDir, report)
		}
		if decErr != nil {
			// Fail fast: files already applied stay applied, the mirror
			// stays for inspection.
			return report, decErr
		}
	}

	e.cleanup(ctx, src, opts)

	e.logger.Info("template sync complete",
		"applied", report.Applied(),
		"skipped", report.Skipped())
	return report, nil
}

// confirmSentinel guards against syncing into a directory that was never
// initialized from the template: the sentinel file is part of every
// instance, so its absence usually means the wrong --project-dir.
func (e *Engine) confirmSentinel(destDir, sentinel string) (bool, error) {
	if _, err := os.Stat(filepath.Join(destDir, sentinel)); err == nil {
		return true, nil
	}

	question := fmt.Sprintf("%s not found under %s, sync anyway", sentinel, destDir)
	if e.dryRun {
		e.logger.Info("[dry-run] would ask", "question", question)
		return true, nil
	}
	return e.ask.Confirm(question)
}

// buildWorklist merges the explicit files with discovery results and orders
// them so structured documents are decided last.
func (e *Engine) buildWorklist(mirrorDir string, files []tracked.File, opts Options) ([]tracked.File, error) {
	list := append([]tracked.File(nil), files...)

	if opts.Discover {
		known := make(map[string]bool, len(list))
		for _, f := range list {
			known[f.Path] = true
		}

		discovered, err := tracked.Discover(mirrorDir, opts.Exclude)
		if err != nil {
			return nil, syncerr.IO(mirrorDir, err)
		}
		e.logger.Info("discovered reference files", "count", len(discovered))

		for _, rel := range discovered {
			if known[rel] {
				continue
			}
			list = append(list, tracked.File{Path: rel, Kind: tracked.WholeFile})
		}
	}

	return tracked.Order(list), nil
}

// decideWholeFile compares one tracked file by checksum and lets the
// operator decide about any drift.
func (e *Engine) decideWholeFile(rel, mirrorDir, destDir string, report *Report) error {
	refPath := filepath.Join(mirrorDir, filepath.FromSlash(rel))
	localPath := filepath.Join(destDir, filepath.FromSlash(rel))

	e.logger.Info("checking", "file", rel)
	result, sums, err := checksum.Compare(localPath, refPath)
	if err != nil {
		return err
	}

	if result == checksum.Identical {
		e.logger.Info("up-to-date", "file", rel)
		report.add(rel, OutcomeSkipped, "up-to-date")
		return nil
	}

	verb, past, question := "update", "updated", "Update file "+rel
	if result == checksum.LocallyMissing {
		verb, past, question = "add", "added", "Add file "+rel
		e.logger.Info("missing locally", "file", rel, "ref_md5", sums.Ref)
	} else {
		e.logger.Info("differs", "file", rel, "local_md5", sums.Local, "ref_md5", sums.Ref)
	}

	if e.dryRun {
		e.logger.Info("[dry-run] would "+verb, "file", rel)
		report.add(rel, OutcomeApplied, "would "+verb)
		return nil
	}

	ok, err := e.ask.Confirm(question)
	if err != nil {
		return err
	}
	if !ok {
		e.logger.Info("not "+past, "file", rel)
		report.add(rel, OutcomeSkipped, "not "+past)
		return nil
	}

	if err := e.copyFile(refPath, localPath); err != nil {
		return syncerr.IO(localPath, err)
	}
	e.logger.Info(past, "file", rel)
	report.add(rel, OutcomeApplied, past)
	return nil
}

// decideStructured reconciles the version fields of one structured
// document. All stale fields are confirmed together and written in a
// single atomic replacement.
func (e *Engine) decideStructured(f tracked.File, mirrorDir, destDir string, report *Report) error {
	refPath := filepath.Join(mirrorDir, filepath.FromSlash(f.Path))
	localPath := filepath.Join(destDir, filepath.FromSlash(f.Path))

	if _, err := os.Stat(localPath); err != nil {
		if !os.IsNotExist(err) {
			return syncerr.IO(localPath, err)
		}
		// No local document to patch: offer the reference copy verbatim.
		return e.decideWholeFile(f.Path, mirrorDir, destDir, report)
	}

	e.logger.Info("checking", "file", f.Path)

	localDoc, err := pyproject.Load(localPath)
	if err != nil {
		return err
	}
	refDoc, err := pyproject.Load(refPath)
	if err != nil {
		return err
	}

	diffs := make([]fieldDiff, 0, len(f.Keys))
	for _, key := range f.Keys {
		refVal, err := refDoc.Version(key)
		if err != nil {
			return syncerr.StructuredKey(refPath, key, err)
		}
		localVal, err := localDoc.Version(key)
		if err != nil {
			return syncerr.StructuredKey(localPath, key, err)
		}
		if localVal != refVal {
			diffs = append(diffs, fieldDiff{key: key, local: localVal, ref: refVal})
		}
	}

	if len(diffs) == 0 {
		e.logger.Info("up-to-date", "file", f.Path)
		report.add(f.Path, OutcomeSkipped, "up-to-date")
		return nil
	}

	for _, d := range diffs {
		e.logger.Info("version differs", "file", f.Path, "key", d.key, "local", d.local, "ref", d.ref)
	}

	if e.dryRun {
		e.logger.Info("[dry-run] would update", "file", f.Path, "fields", len(diffs))
		report.add(f.Path, OutcomeApplied, "would update")
		return nil
	}

	ok, err := e.ask.Confirm(patchQuestion(f.Path, diffs))
	if err != nil {
		return err
	}
	if !ok {
		e.logger.Info("not updated", "file", f.Path)
		report.add(f.Path, OutcomeSkipped, "not updated")
		return nil
	}

	for _, d := range diffs {
		if err := localDoc.SetVersion(d.key, d.ref); err != nil {
			return syncerr.StructuredKey(localPath, d.key, err)
		}
	}
	if err := e.writeDocument(localPath, localDoc); err != nil {
		return err
	}

	e.logger.Info("updated", "file", f.Path, "fields", len(diffs))
	report.add(f.Path, OutcomeApplied, "updated")
	return nil
}

// patchQuestion names every stale field with both values so the operator
// sees exactly what a yes answer changes.
func patchQuestion(path string, diffs []fieldDiff) string {
	parts := make([]string, 0, len(diffs))
	for _, d := range diffs {
		parts = append(parts, fmt.Sprintf("%s: %s => %s", d.key, d.local, d.ref))
	}
	return fmt.Sprintf("Update %s (%s)", path, strings.Join(parts, ", "))
}

// cleanup parks the mirror on its default branch and removes it unless the
// operator asked to keep it. Both steps are best-effort.
func (e *Engine) cleanup(ctx context.Context, src Source, opts Options) {
	if e.dryRun {
		return
	}

	if err := e.git.Reset(ctx, src.MirrorDir, src.DefaultRef); err != nil {
		e.logger.Warn("could not reset reference mirror", "mirror", src.MirrorDir, "error", err)
	}

	if opts.KeepMirror {
		e.logger.Info("keeping reference mirror", "mirror", src.MirrorDir)
		return
	}
	if err := os.RemoveAll(src.MirrorDir); err != nil {
		e.logger.Warn("could not remove reference mirror", "mirror", src.MirrorDir, "error", err)
		return
	}
	e.logger.Info("removed reference mirror", "mirror", src.MirrorDir)
}

// writeDocument serializes the document over the existing file, keeping its
// permissions.
func (e *Engine) writeDocument(path string, doc *pyproject.Document) error {
	data, err := doc.Marshal()
	if err != nil {
		return syncerr.StructuredParse(path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return syncerr.IO(path, err)
	}

	if err := writeAtomic(path, bytes.NewReader(data), info.Mode()); err != nil {
		return syncerr.IO(path, err)
	}
	return nil
}

// copyFile copies a file from src to dst with an atomic write
func (e *Engine) copyFile(src, dst string) error {
	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = srcFile.Close()
	}()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	return writeAtomic(dst, srcFile, srcInfo.Mode())
}

// writeAtomic writes r to dst via a temp file in the destination directory
// and a rename. On any failure the destination keeps its previous content
// and the temp file is removed.
func writeAtomic(dst string, r io.Reader, mode fs.FileMode) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".templsync-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	if _, err := io.Copy(tmpFile, r); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, dst)
}
