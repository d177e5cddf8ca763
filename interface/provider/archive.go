package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archiver"
	"github.com/wekeo/hda-ingester/service"
	"github.com/wekeo/hda-ingester/service/log"
)

// Normalizer repairs the extension of downloaded products whose declared
// format implies an archive, then extracts every archive of the download
// directory in place.
type Normalizer struct {
	// Formats maps a declared product format (lower-case) to the archive
	// extension the payload actually carries. Dataset-specific: e.g. SAFE
	// acquisitions are delivered as a zip without the .zip suffix.
	Formats map[string]string
}

// NewNormalizer creates a Normalizer with the default format mapping
func NewNormalizer() *Normalizer {
	return &Normalizer{
		Formats: map[string]string{
			"safe":   "zip",
			"zipper": "zip",
		},
	}
}

// Repair renames the file so that it carries the archive extension expected
// for its declared format. Already-renamed files are left untouched.
// It returns the path of the (possibly renamed) file.
func (n *Normalizer) Repair(ctx context.Context, path, format string) (string, error) {
	ext, ok := n.Formats[strings.ToLower(format)]
	if !ok {
		return path, nil
	}
	if strings.HasSuffix(path, "."+ext) {
		return path, nil
	}

	repaired := path + "." + ext
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if _, err := os.Stat(repaired); err == nil {
			// a previous run already renamed it
			return repaired, nil
		}
		return "", fmt.Errorf("Repair: %s: file not found", path)
	}

	log.Logger(ctx).Sugar().Debugf("renaming %s to %s", path, repaired)
	if err := os.Rename(path, repaired); err != nil {
		return "", fmt.Errorf("Repair: %w", err)
	}
	return repaired, nil
}

// ExtractAll extracts every archive found in dir into dir itself.
// Idempotent: contents that already exist are left in place and never error.
func (n *Normalizer) ExtractAll(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("ExtractAll: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isArchive(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		log.Logger(ctx).Sugar().Infof("extracting %s", path)
		if err := unarchive(path, dir); err != nil {
			return service.ErrArchive{Path: path, Err: err}
		}
	}
	return nil
}

func isArchive(filename string) bool {
	iface, err := archiver.ByExtension(filename)
	if err != nil {
		return false
	}
	_, ok := iface.(archiver.Unarchiver)
	return ok
}

// unarchive file with basic check, moving only the entries that do not
// already exist in localDir
func unarchive(localArchive, localDir string) error {
	tmpdir, err := os.MkdirTemp(localDir, filepath.Base(localArchive))
	if err != nil {
		return service.MakeTemporary(err)
	}
	defer os.RemoveAll(tmpdir)
	if err := archiver.Unarchive(localArchive, tmpdir); err != nil {
		return err
	}
	files, err := os.ReadDir(tmpdir)
	if err != nil {
		return service.MakeTemporary(err)
	}
	if len(files) == 0 {
		return fmt.Errorf("empty archive")
	}
	for _, f := range files {
		target := filepath.Join(localDir, f.Name())
		if _, err := os.Stat(target); err == nil {
			continue
		}
		if err := os.Rename(filepath.Join(tmpdir, f.Name()), target); err != nil {
			return service.MakeTemporary(err)
		}
	}
	return nil
}
