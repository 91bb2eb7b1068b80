// Package paths resolves input file lists and derives destination
// archive paths for the pipeline.
package paths

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Resolve expands the argument list into concrete input files. Paths
// that exist are taken as-is; anything else is treated as a glob
// pattern. The result is sorted and deduplicated.
func Resolve(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		if _, err := os.Stat(arg); err == nil {
			files = append(files, arg)
			continue
		}
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad glob pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			slog.Warn("path or glob pattern matched nothing, ignoring", "pattern", arg)
			continue
		}
		files = append(files, matches...)
	}

	sort.Strings(files)
	files = dedup(files)
	return files, nil
}

func dedup(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}

// Output derives the destination path for a source archive: the source
// file's name with the target extension, placed under outdir. Relative
// sources keep their (sanitized) subpath below outdir so batches do not
// collide; absolute sources are flattened to their base name.
func Output(source, outdir, ext string) string {
	var sub string
	if filepath.IsAbs(source) {
		sub = filepath.Base(source)
	} else {
		sub = sanitize(source)
	}
	sub = strings.TrimSuffix(sub, filepath.Ext(sub)) + "." + ext
	return filepath.Join(outdir, sub)
}

// sanitize strips parent-dir components so a relative source can never
// escape the output directory.
func sanitize(p string) string {
	parts := strings.Split(filepath.ToSlash(p), "/")
	kept := parts[:0]
	for _, part := range parts {
		if part == ".." || part == "." || part == "" {
			continue
		}
		kept = append(kept, part)
	}
	return filepath.Join(kept...)
}
