package utils

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DiskUsageBytes returns the total size in bytes of the given files and directories.
// Empty and missing paths contribute 0. A path inside another listed directory is counted
// once, so a store directory and an index nested under it can both be passed.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range outermost(paths) {
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += fi.Size()
			return nil
		})
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
	}
	return total, nil
}

// outermost cleans paths and drops blanks, duplicates and paths nested in another one.
func outermost(paths []string) []string {
	clean := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		clean = append(clean, filepath.Clean(p))
	}
	sort.Strings(clean)
	out := clean[:0]
	for _, p := range clean {
		if n := len(out); n > 0 {
			prev := out[n-1]
			if p == prev || strings.HasPrefix(p, prev+string(filepath.Separator)) {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}
