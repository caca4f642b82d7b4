package usecase

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const fallbackFilename = "video"

var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// sanitizeFilename reduces an uploaded name to a safe ASCII base name.
func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	folded, _, err := transform.String(stripMarks, base)
	if err != nil {
		folded = base
	}

	var b strings.Builder
	for _, r := range folded {
		switch {
		case r > unicode.MaxASCII:
			continue
		case r == ' ' || r == '\t':
			b.WriteByte('_')
		case r == '.' || r == '_' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return fallbackFilename
	}
	return out
}

func mediaExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 || len(ext) > 6 {
		return ".mp4"
	}
	return ext
}

func saveUpload(open func() (io.ReadCloser, error), dst string) (int64, error) {
	src, err := open()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, src)
	if err != nil {
		out.Close()
		return n, err
	}
	return n, out.Close()
}

func removeQuietly(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		_ = os.Remove(p)
	}
}
