package reconcile

import (
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"io"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

const (
	fastWholeFileLimit = 256 * 1024
	fastHeadTailSize   = 128 * 1024
	strongChunkSize    = 64 * 1024
)

// fingerprint computes the content fingerprint of path under the given
// hash mode. It returns the empty string ("absent") on I/O error, empty
// file (fast mode) or hashing failure; an absent fingerprint never
// equals any real one.
func fingerprint(fsys afero.Fs, path string, mode HashMode) (string, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %q (%w)", errFingerprintUnavailable, path, err)
	}

	if mode == HashStrong {
		return fingerprintStrong(fsys, path)
	}

	return fingerprintFast(fsys, path, info.Size())
}

func fingerprintFast(fsys afero.Fs, path string, size int64) (string, error) {
	if size == 0 {
		return "", nil
	}

	f, err := fsys.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %q (%w)", errFingerprintUnavailable, path, err)
	}
	defer f.Close()

	h := fnv.New64a()

	if size <= fastWholeFileLimit {
		if _, err := io.Copy(h, f); err != nil {
			return "", fmt.Errorf("%w: %q (%w)", errFingerprintUnavailable, path, err)
		}

		return hex.EncodeToString(h.Sum(nil)), nil
	}

	head := make([]byte, fastHeadTailSize)
	if _, err := io.ReadFull(f, head); err != nil {
		return "", fmt.Errorf("%w: %q (%w)", errFingerprintUnavailable, path, err)
	}

	if _, err := f.Seek(size-fastHeadTailSize, io.SeekStart); err != nil {
		return "", fmt.Errorf("%w: %q (%w)", errFingerprintUnavailable, path, err)
	}

	tail := make([]byte, fastHeadTailSize)
	if _, err := io.ReadFull(f, tail); err != nil {
		return "", fmt.Errorf("%w: %q (%w)", errFingerprintUnavailable, path, err)
	}

	if _, err := h.Write(head); err != nil {
		return "", fmt.Errorf("%w: %q (%w)", errFingerprintUnavailable, path, err)
	}
	if _, err := h.Write(tail); err != nil {
		return "", fmt.Errorf("%w: %q (%w)", errFingerprintUnavailable, path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func fingerprintStrong(fsys afero.Fs, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %q (%w)", errFingerprintUnavailable, path, err)
	}
	defer f.Close()

	h := blake3.New()
	buf := make([]byte, strongChunkSize)

	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("%w: %q (%w)", errFingerprintUnavailable, path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
