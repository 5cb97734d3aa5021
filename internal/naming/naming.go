// Package naming derives storage keys, extensions and display sizes for
// uploaded materials. Nothing here does I/O or fails.
package naming

import (
	"fmt"
	"math/rand"
	"path"
	"strconv"
	"strings"
	"time"
)

// KeyPrefix is the object-store prefix every material key lives under
const KeyPrefix = "materials/"

// random suffixes are drawn from [0, 1e9]
const randomSpan = 1_000_000_001

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// StorageKey returns materials/{unixMillis}-{random}-{basename}{.ext} for the
// given original filename. The extension is lowercased, the basename is kept.
func StorageKey(originalName string) string {
	return buildKey(time.Now(), rand.Int63n(randomSpan), originalName)
}

func buildKey(now time.Time, random int64, originalName string) string {
	base, ext := SplitName(originalName)
	return fmt.Sprintf("%s%d-%d-%s%s", KeyPrefix, now.UnixMilli(), random, base, strings.ToLower(ext))
}

// SplitName splits the final path element of name at its last extension
// boundary. A leading dot does not start an extension, so ".env" has none.
func SplitName(name string) (base, ext string) {
	b := path.Base(name)
	if b == "." || b == "/" {
		return "", ""
	}
	i := strings.LastIndexByte(b, '.')
	if i <= 0 {
		return b, ""
	}
	return b[:i], b[i:]
}

// Extension returns the lowercase extension of name without the leading dot
func Extension(name string) string {
	_, ext := SplitName(name)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// FormatSize renders a byte count in base-1024 units with at most two
// decimals, e.g. "1.5 KB". Anything above GB stays in GB.
func FormatSize(bytes int64) string {
	if bytes == 0 {
		return "0 Bytes"
	}

	i := 0
	div := int64(1)
	for i < len(sizeUnits)-1 && bytes >= div*1024 {
		div *= 1024
		i++
	}

	value := float64(bytes) / float64(div)
	s := strconv.FormatFloat(value, 'f', 2, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s + " " + sizeUnits[i]
}
