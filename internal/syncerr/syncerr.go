package syncerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a synchronization failure so callers can react to the
// category without parsing message text.
type Kind string

const (
	// KindReferenceNotFound: the template repository or the requested
	// revision does not exist.
	KindReferenceNotFound Kind = "reference-not-found"
	// KindReferenceUnreachable: the remote never answered within the
	// configured timeout.
	KindReferenceUnreachable Kind = "reference-unreachable"
	// KindInvalidMirror: the mirror path exists but does not hold a git
	// checkout.
	KindInvalidMirror Kind = "invalid-mirror"
	// KindMirrorMissing: no mirror exists and the current mode may not
	// create one (dry-run).
	KindMirrorMissing Kind = "mirror-missing"
	// KindTargetMissing: the project directory to synchronize into does
	// not exist.
	KindTargetMissing Kind = "local-target-missing"
	// KindStructuredParse: a structured document is malformed or lacks a
	// required key.
	KindStructuredParse Kind = "structured-parse"
	// KindUnansweredPrompt: the operator exhausted the prompt attempts
	// without a usable answer.
	KindUnansweredPrompt Kind = "unanswered-prompt"
	// KindIO: any other filesystem failure.
	KindIO Kind = "io-failure"
)

// Error is a classified failure carrying the offending path, revision
// and key so messages always name what broke.
type Error struct {
	Kind Kind
	Path string // file or directory the failure concerns
	Ref  string // repository URL or revision, when relevant
	Key  string // structured-field key path, when relevant
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Path != "" {
		fmt.Fprintf(&b, " %s", e.Path)
	}
	if e.Ref != "" {
		fmt.Fprintf(&b, " (%s)", e.Ref)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " key %s", e.Key)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ReferenceNotFound reports a repository or revision that does not exist.
func ReferenceNotFound(url, rev string, cause error) *Error {
	ref := url
	if rev != "" {
		ref = fmt.Sprintf("%s @ %s", url, rev)
	}
	return &Error{Kind: KindReferenceNotFound, Ref: ref, Err: cause}
}

// ReferenceUnreachable reports a remote that timed out or refused contact.
func ReferenceUnreachable(url string, cause error) *Error {
	return &Error{Kind: KindReferenceUnreachable, Ref: url, Err: cause}
}

// InvalidMirror reports a mirror path occupied by something that is not a
// git checkout.
func InvalidMirror(dir string, cause error) *Error {
	return &Error{Kind: KindInvalidMirror, Path: dir, Err: cause}
}

// MirrorMissing reports an absent mirror in a mode that may not create one.
func MirrorMissing(dir string) *Error {
	return &Error{Kind: KindMirrorMissing, Path: dir, Err: errors.New("reference mirror does not exist")}
}

// TargetMissing reports a project directory that does not exist.
func TargetMissing(dir string) *Error {
	return &Error{Kind: KindTargetMissing, Path: dir, Err: errors.New("project directory does not exist")}
}

// StructuredParse reports a malformed structured document.
func StructuredParse(path string, cause error) *Error {
	return &Error{Kind: KindStructuredParse, Path: path, Err: cause}
}

// StructuredKey reports a missing or unusable key inside a structured
// document.
func StructuredKey(path, key string, cause error) *Error {
	return &Error{Kind: KindStructuredParse, Path: path, Key: key, Err: cause}
}

// Unanswered reports a prompt the operator never answered usably.
func Unanswered(question string, attempts int) *Error {
	return &Error{
		Kind: KindUnansweredPrompt,
		Err:  fmt.Errorf("no usable answer to %q after %d attempts", question, attempts),
	}
}

// IO wraps a filesystem failure with the path it concerns.
func IO(path string, cause error) *Error {
	return &Error{Kind: KindIO, Path: path, Err: cause}
}

// KindOf extracts the classification from err, unwrapping as needed. It
// returns the empty Kind for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given classification anywhere in
// its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
