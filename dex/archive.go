package dex

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zip"
)

const classesEntry = "classes.dex"

// ReadFile returns the raw container bytes at path. Zip archives (jar, apk)
// are opened and their classes.dex entry returned.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return readArchive(bytes.NewReader(data), int64(len(data)), path)
	}
	return data, nil
}

// OpenFile reads and verifies the container at path.
func OpenFile(path string, opts ...VerifyOption) (*File, error) {
	data, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Verify(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// OpenArchive reads and verifies classes.dex from the zip archive at path.
func OpenArchive(path string, opts ...VerifyOption) (*File, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := extract(&r.Reader, path)
	if err != nil {
		return nil, err
	}
	f, err := Verify(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s!%s: %w", path, classesEntry, err)
	}
	return f, nil
}

func readArchive(r io.ReaderAt, size int64, path string) ([]byte, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return extract(zr, path)
}

func extract(zr *zip.Reader, path string) ([]byte, error) {
	for _, entry := range zr.File {
		if entry.Name != classesEntry {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("%s!%s: %w", path, classesEntry, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("%s!%s: %w", path, classesEntry, err)
		}
		log.Debugf("extracted %s from %s (%d bytes)", classesEntry, path, len(data))
		return data, nil
	}
	return nil, fmt.Errorf("%s: %w", path, ErrNotInArchive)
}
