package intake

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zip"

	"github.com/Sumatoshi-tech/codereport/pkg/language"
)

// ExtractStats summarizes one extraction.
type ExtractStats struct {
	Files   int
	Skipped int
	Bytes   int64
}

// ExtractZip extracts the regular files of the archive at src into dest.
// Directories, symlinks and vendored paths are skipped. Any entry that
// would land outside dest fails the whole extraction with ErrUnsafePath.
func ExtractZip(src, dest string, limits Limits) (ExtractStats, error) {
	limits = limits.withDefaults()

	reader, err := zip.OpenReader(src)
	if err != nil {
		return ExtractStats{}, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	defer reader.Close()

	err = checkLimits(reader.File, limits)
	if err != nil {
		return ExtractStats{}, err
	}

	err = os.MkdirAll(dest, 0o750)
	if err != nil {
		return ExtractStats{}, fmt.Errorf("create extraction dir: %w", err)
	}

	var stats ExtractStats

	for _, file := range reader.File {
		name := strings.ReplaceAll(file.Name, `\`, "/")

		local := filepath.FromSlash(strings.TrimSuffix(name, "/"))
		if local != "" && !filepath.IsLocal(local) {
			return stats, fmt.Errorf("%w: %q", ErrUnsafePath, file.Name)
		}

		mode := file.Mode()
		if mode.IsDir() || strings.HasSuffix(name, "/") {
			continue
		}

		if mode&fs.ModeSymlink != 0 || !mode.IsRegular() || language.IsVendored(name) {
			stats.Skipped++

			continue
		}

		written, extractErr := extractFile(file, filepath.Join(dest, local), limits.MaxBytes-stats.Bytes)
		if extractErr != nil {
			return stats, extractErr
		}

		stats.Files++
		stats.Bytes += written
	}

	return stats, nil
}

func checkLimits(files []*zip.File, limits Limits) error {
	var (
		count int
		total uint64
	)

	for _, file := range files {
		if file.Mode().IsDir() {
			continue
		}

		count++
		total += file.UncompressedSize64
	}

	if count > limits.MaxFiles {
		return fmt.Errorf("%w: %d entries, limit %d", ErrArchiveTooLarge, count, limits.MaxFiles)
	}

	if total > uint64(limits.MaxBytes) {
		return fmt.Errorf("%w: %s uncompressed, limit %s",
			ErrArchiveTooLarge, humanize.Bytes(total), humanize.Bytes(uint64(limits.MaxBytes)))
	}

	return nil
}

// extractFile copies one entry to target, refusing to write more than
// budget bytes even when the header understates the size.
func extractFile(file *zip.File, target string, budget int64) (int64, error) {
	err := os.MkdirAll(filepath.Dir(target), 0o750)
	if err != nil {
		return 0, fmt.Errorf("create dir for %s: %w", file.Name, err)
	}

	in, err := file.Open()
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %w", ErrInvalidArchive, file.Name, err)
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", file.Name, err)
	}

	written, copyErr := io.Copy(out, io.LimitReader(in, budget+1))
	closeErr := out.Close()

	if copyErr != nil {
		return written, fmt.Errorf("%w: read %s: %w", ErrInvalidArchive, file.Name, copyErr)
	}

	if closeErr != nil {
		return written, fmt.Errorf("write %s: %w", file.Name, closeErr)
	}

	if written > budget {
		return written, fmt.Errorf("%w: more than %s uncompressed",
			ErrArchiveTooLarge, humanize.Bytes(uint64(budget)))
	}

	return written, nil
}

// IsInvalidArchive reports whether err came from a corrupt archive.
func IsInvalidArchive(err error) bool {
	return errors.Is(err, ErrInvalidArchive) || errors.Is(err, zip.ErrFormat)
}
