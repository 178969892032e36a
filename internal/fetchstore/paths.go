package fetchstore

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/finharvest/filing-harvester/internal/harvester"
)

// knownExtensions are kept as-is when present in the URL path.
var knownExtensions = map[string]struct{}{
	".htm": {}, ".html": {}, ".pdf": {}, ".txt": {}, ".xml": {},
	".xls": {}, ".xlsx": {}, ".doc": {}, ".docx": {}, ".ppt": {}, ".pptx": {},
	".csv": {}, ".json": {}, ".zip": {},
}

// contentTypeExtensions upgrade an .html guess when the server declared
// a more specific type.
var contentTypeExtensions = map[string]string{
	"application/pdf": ".pdf",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"application/vnd.ms-excel":                                                  ".xls",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/vnd.ms-powerpoint":                                             ".ppt",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/msword": ".doc",
	"text/plain":         ".txt",
}

// relativePath derives the storage location for one document below the
// root. Layout is <TICKER>/<category>/<tag>[/<accession>]/<name>; the
// name embeds the fetch date and an md5 of the URL so distinct URLs
// never collide.
func relativePath(ticker string, category harvester.Category, ref harvester.DocumentRef, now time.Time) string {
	parts := []string{
		strings.ToUpper(ticker),
		string(category),
		sanitizeSegment(ref.DocType),
	}
	if ref.Accession != "" {
		parts = append(parts, sanitizeSegment(ref.Accession))
	}
	parts = append(parts, fileName(ref.URL, now))
	return filepath.Join(parts...)
}

// fileName builds <yyyymmdd>_<md5(url)><ext>. The extension comes from
// the URL path when recognized, defaulting to .html for extensionless
// links (IR pages frequently hide documents behind handler URLs).
func fileName(rawURL string, now time.Time) string {
	sum := md5.Sum([]byte(rawURL))
	return now.Format("20060102") + "_" + hex.EncodeToString(sum[:]) + extensionFromURL(rawURL)
}

func extensionFromURL(rawURL string) string {
	p := rawURL
	if parsed, err := url.Parse(rawURL); err == nil {
		p = parsed.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if _, ok := knownExtensions[ext]; ok {
		return ext
	}
	return ".html"
}

// upgradeExtension swaps a defaulted .html suffix for the extension the
// response's Content-Type implies. A URL-derived extension is trusted
// over the header.
func upgradeExtension(name, contentType string) string {
	if !strings.HasSuffix(name, ".html") {
		return name
	}
	mediaType := contentType
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	ext, ok := contentTypeExtensions[mediaType]
	if !ok {
		return name
	}
	return strings.TrimSuffix(name, ".html") + ext
}

// sanitizeSegment makes a tag safe to use as a directory name.
func sanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "untagged"
	}
	replacer := strings.NewReplacer("/", "-", "\\", "-", " ", "_", ":", "-")
	return replacer.Replace(s)
}
