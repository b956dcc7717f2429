// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/citation-crawler/internal/paperid"
	"github.com/pdiddy/citation-crawler/pkg/types"
)

// slugUnsafe matches characters that do not belong in a filename stem.
var slugUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Slug returns a filesystem-safe filename stem for the identifier. OpenAlex
// ids are used as-is, DOIs have separators replaced, anything else that
// would not survive as a filename falls back to a hash.
func Slug(id types.PaperID) string {
	s := string(id)
	if paperid.IsWork(id) {
		return s
	}
	if paperid.IsDOI(id) {
		s = strings.TrimPrefix(s, paperid.DOIPrefix)
	}
	s = strings.Trim(slugUnsafe.ReplaceAllString(s, "-"), "-.")
	if s == "" {
		return hashSlug(string(id))
	}
	return s
}

func hashSlug(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("id-%x", h[:8])
}

// isPDF reports whether a response looks like a PDF: the content type says
// so, the URL ends in .pdf, or the body starts with the PDF magic.
func isPDF(contentType, rawURL string, head []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "pdf") {
		return true
	}
	if strings.HasSuffix(strings.ToLower(strings.SplitN(rawURL, "?", 2)[0]), ".pdf") && !looksLikeHTML(head) {
		return true
	}
	return hasPDFMagic(head)
}

func hasPDFMagic(head []byte) bool {
	return len(head) >= 5 && string(head[:5]) == "%PDF-"
}

func looksLikeHTML(head []byte) bool {
	h := strings.ToLower(strings.TrimSpace(string(head)))
	return strings.HasPrefix(h, "<!doctype html") || strings.HasPrefix(h, "<html")
}
