package checksum

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/core-unit-bioinformatics/templsync/internal/syncerr"
)

// Result classifies a local file against its reference copy.
type Result string

const (
	Identical      Result = "identical"
	Differs        Result = "differs"
	LocallyMissing Result = "locally-missing"
)

// Pair holds both digests for operator display. Local is empty when the
// local file does not exist.
type Pair struct {
	Local string
	Ref   string
}

// File computes the hex MD5 digest of the file content. MD5 identifies
// content drift here, it protects nothing.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Compare fingerprints localPath against refPath. A missing local file is a
// valid LocallyMissing result; a reference copy that cannot be read means
// the template snapshot is broken and is always an error.
func Compare(localPath, refPath string) (Result, Pair, error) {
	refSum, err := File(refPath)
	if err != nil {
		return "", Pair{}, syncerr.IO(refPath, fmt.Errorf("reference copy unreadable: %w", err))
	}

	if _, err := os.Stat(localPath); err != nil {
		if os.IsNotExist(err) {
			return LocallyMissing, Pair{Ref: refSum}, nil
		}
		return "", Pair{}, syncerr.IO(localPath, err)
	}

	localSum, err := File(localPath)
	if err != nil {
		return "", Pair{}, syncerr.IO(localPath, err)
	}

	sums := Pair{Local: localSum, Ref: refSum}
	if localSum == refSum {
		return Identical, sums, nil
	}
	return Differs, sums, nil
}
