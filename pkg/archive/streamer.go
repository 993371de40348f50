// Package archive assembles zip and tar.gz downloads as streams.
//
// Nothing is materialized in memory or on disk: entries are copied straight
// into the compressing writer, which wraps the HTTP response body. For zip,
// compression adapts to the total payload size: a pre-flight byte-sum probe
// decides between deflate and store mode so very large bundles do not burn
// CPU compressing data nobody asked to be small.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sesukyothole/bro-file-manager/internal/logger"
)

// Format selects the archive container.
type Format string

const (
	FormatZip   Format = "zip"
	FormatTarGz Format = "targz"
)

// DefaultLargeBytes is the zip store-mode threshold when none is configured.
const DefaultLargeBytes = 100 << 20 // 100 MiB

// ParseFormat validates a caller-supplied format string.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatZip, FormatTarGz:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown archive format %q", s)
}

// Ext returns the filename extension for the format.
func (f Format) Ext() string {
	if f == FormatTarGz {
		return "tar.gz"
	}
	return "zip"
}

// Prober measures the recursive byte size of host paths up to a limit.
// The local adapter's SizeProbe satisfies it.
type Prober interface {
	SizeProbe(ctx context.Context, hostPaths []string, limit int64) (total int64, hitLimit bool, err error)
}

// Streamer writes archives of already-resolved host paths.
type Streamer struct {
	prober     Prober
	largeBytes int64
}

// NewStreamer builds a streamer with the given store-mode threshold.
func NewStreamer(prober Prober, largeBytes int64) *Streamer {
	if largeBytes <= 0 {
		largeBytes = DefaultLargeBytes
	}
	return &Streamer{prober: prober, largeBytes: largeBytes}
}

// Stream writes an archive of the host paths to w.
//
// The paths must already have been proven inside the caller's root; entry
// names inside the archive are the path basenames, with directory contents
// nested beneath them. Symlinks are skipped. An error mid-stream leaves the
// response truncated; callers log it and must not retry into the same body.
func (s *Streamer) Stream(ctx context.Context, w io.Writer, format Format, hostPaths []string) error {
	if format == FormatTarGz {
		return s.streamTarGz(ctx, w, hostPaths)
	}
	return s.streamZip(ctx, w, hostPaths)
}

func (s *Streamer) streamZip(ctx context.Context, w io.Writer, hostPaths []string) error {
	total, hitLimit, err := s.prober.SizeProbe(ctx, hostPaths, s.largeBytes)
	if err != nil {
		return fmt.Errorf("size probe: %w", err)
	}

	// At or past the threshold the zip stores entries uncompressed.
	method := zip.Deflate
	if hitLimit {
		method = zip.Store
		logger.Info().
			Str("total", humanize.IBytes(uint64(total))).
			Str("threshold", humanize.IBytes(uint64(s.largeBytes))).
			Msg("Archive at size threshold, using store mode")
	}

	zw := zip.NewWriter(w)
	err = s.walkEntries(ctx, hostPaths, func(hostPath, name string, info os.FileInfo) error {
		if info.IsDir() {
			_, err := zw.CreateHeader(&zip.FileHeader{
				Name:     name + "/",
				Modified: info.ModTime(),
			})
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = name
		hdr.Method = method
		entry, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		return copyFileInto(entry, hostPath)
	})
	if err != nil {
		return err
	}
	return zw.Close()
}

func (s *Streamer) streamTarGz(ctx context.Context, w io.Writer, hostPaths []string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := s.walkEntries(ctx, hostPaths, func(hostPath, name string, info os.FileInfo) error {
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = name
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		return copyFileInto(tw, hostPath)
	})
	if err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// walkEntries visits every non-symlink node under the host paths, handing
// the callback the archive-internal name for each.
func (s *Streamer) walkEntries(ctx context.Context, hostPaths []string, emit func(hostPath, name string, info os.FileInfo) error) error {
	for _, hostPath := range hostPaths {
		if err := ctx.Err(); err != nil {
			return err
		}

		info, err := os.Lstat(hostPath)
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}

		base := filepath.Base(hostPath)
		if !info.IsDir() {
			if err := emit(hostPath, base, info); err != nil {
				return err
			}
			continue
		}

		err = filepath.WalkDir(hostPath, func(curr string, d fs.DirEntry, werr error) error {
			if werr != nil {
				return werr
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.Type()&os.ModeSymlink != 0 {
				return nil
			}
			rel, err := filepath.Rel(hostPath, curr)
			if err != nil {
				return err
			}
			name := base
			if rel != "." {
				name = base + "/" + filepath.ToSlash(rel)
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			return emit(curr, name, info)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func copyFileInto(w io.Writer, hostPath string) error {
	f, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// Name picks the download filename: the basename for a single entry, a
// timestamped bundle name otherwise.
func Name(virtualPaths []string, format Format, now time.Time) string {
	if len(virtualPaths) == 1 {
		base := virtualPaths[0]
		if i := strings.LastIndexByte(base, '/'); i >= 0 {
			base = base[i+1:]
		}
		if base == "" {
			base = "root"
		}
		return base + "." + format.Ext()
	}
	return fmt.Sprintf("bundle-%s.%s", now.UTC().Format("20060102-150405"), format.Ext())
}

// ContentDisposition renders the attachment header with both an ASCII
// fallback and the RFC 5987 UTF-8 form for non-ASCII names.
func ContentDisposition(filename string) string {
	fallback := make([]rune, 0, len(filename))
	for _, r := range filename {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			fallback = append(fallback, '_')
		} else {
			fallback = append(fallback, r)
		}
	}
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`,
		string(fallback), url.PathEscape(filename))
}
