package download

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/GriffinCanCode/miniapp/internal/shared/paths"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
	"github.com/GriffinCanCode/miniapp/internal/shared/utils"
)

// maxExtractedBytes caps the total size one archive may expand to
const maxExtractedBytes = 1 << 30

type archiveFormat string

const (
	formatNone archiveFormat = ""
	formatZip  archiveFormat = "application/zip"
	formatTar  archiveFormat = "application/x-tar"
	formatGzip archiveFormat = "application/gzip"
	formatZstd archiveFormat = "application/zstd"
)

// detectArchive sniffs the file content, walking up the mimetype tree so
// zip-based formats still count as zip
func detectArchive(path string) (archiveFormat, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return formatNone, err
	}
	for m := mtype; m != nil; m = m.Parent() {
		for _, f := range []archiveFormat{formatZip, formatTar, formatGzip, formatZstd} {
			if m.Is(string(f)) {
				return f, nil
			}
		}
	}
	return formatNone, nil
}

// extractor writes archive entries beneath dest, rejecting anything that
// would escape it or is not a plain file or directory
type extractor struct {
	dest   string
	budget int64
}

func extractArchive(ctx context.Context, archivePath, dest string, format archiveFormat) error {
	x := &extractor{dest: dest, budget: maxExtractedBytes}
	switch format {
	case formatZip:
		return x.zip(ctx, archivePath)
	case formatTar, formatGzip, formatZstd:
		return x.tar(ctx, archivePath, format)
	default:
		return fmt.Errorf("unsupported archive format %q", format)
	}
}

func (x *extractor) zip(ctx context.Context, archivePath string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return corrupted(err, "open zip")
	}
	defer reader.Close()

	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		mode := file.Mode()
		switch {
		case mode.IsDir():
			if err := x.mkdir(file.Name); err != nil {
				return err
			}
		case mode.IsRegular():
			rc, err := file.Open()
			if err != nil {
				return corrupted(err, "open "+file.Name)
			}
			err = x.write(file.Name, rc)
			rc.Close()
			if err != nil {
				return err
			}
		default:
			return types.NewError(types.KindCorrupted, fmt.Sprintf("archive entry %s is not a regular file", file.Name))
		}
	}
	return nil
}

func (x *extractor) tar(ctx context.Context, archivePath string, format archiveFormat) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer file.Close()

	var r io.Reader = file
	switch format {
	case formatGzip:
		gz, err := gzip.NewReader(file)
		if err != nil {
			return corrupted(err, "open gzip")
		}
		defer gz.Close()
		r = gz
	case formatZstd:
		zr, err := zstd.NewReader(file)
		if err != nil {
			return corrupted(err, "open zstd")
		}
		defer zr.Close()
		r = zr
	}

	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return corrupted(err, "read tar")
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := x.mkdir(header.Name); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := x.write(header.Name, tr); err != nil {
				return err
			}
		case tar.TypeXGlobalHeader, tar.TypeXHeader:
		default:
			return types.NewError(types.KindCorrupted, fmt.Sprintf("archive entry %s is not a regular file", header.Name))
		}
	}
}

func (x *extractor) target(name string) (string, error) {
	rel, err := utils.CleanRelativePath(strings.TrimSuffix(name, "/"))
	if err != nil {
		return "", corrupted(err, "archive entry")
	}
	target, err := paths.Within(x.dest, rel)
	if err != nil {
		return "", corrupted(err, "archive entry")
	}
	return target, nil
}

func (x *extractor) mkdir(name string) error {
	if strings.Trim(name, "./") == "" {
		return nil
	}
	target, err := x.target(name)
	if err != nil {
		return err
	}
	return os.MkdirAll(target, 0o755)
}

func (x *extractor) write(name string, r io.Reader) error {
	target, err := x.target(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, io.LimitReader(r, x.budget+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return corrupted(err, "extract "+name)
	}
	x.budget -= n
	if x.budget < 0 {
		return types.NewError(types.KindCorrupted, "archive expands beyond the size limit")
	}
	return nil
}

func corrupted(err error, what string) error {
	return types.Wrap(types.KindCorrupted, err, what)
}
