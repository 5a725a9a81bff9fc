package storage

import (
	"sort"
	"strings"
)

// FoldByDelimiter emulates a single-level listing with Delimiter="/".
// objects must all start with prefix. Keys with a "/" after the prefix are
// collapsed into one directory entry per distinct next segment; the rest are
// returned unchanged. The result is sorted by key.
func FoldByDelimiter(prefix string, objects []ObjectInfo) []ObjectInfo {
	seen := make(map[string]bool)
	out := make([]ObjectInfo, 0, len(objects))
	for _, obj := range objects {
		rest := strings.TrimPrefix(obj.Key, prefix)
		idx := strings.Index(rest, "/")
		if idx < 0 {
			out = append(out, obj)
			continue
		}
		folded := prefix + rest[:idx+1]
		if seen[folded] {
			continue
		}
		seen[folded] = true
		out = append(out, ObjectInfo{Key: folded, ContentType: DirectoryContentType})
	}
	SortByKey(out)
	return out
}

// SortByKey orders objects lexicographically by key.
func SortByKey(objects []ObjectInfo) {
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
}
