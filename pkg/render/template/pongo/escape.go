package pongo

import (
	"path"
	"regexp"
	"strings"

	"github.com/goliatone/go-viewrender/pkg/render/template"
)

var extendsTag = regexp.MustCompile(`\{%-?\s*extends\s`)

// unescapedExtensions are the file extensions the name strategy renders
// without HTML escaping. A trailing ".twig" is ignored, so "mail.txt.twig"
// counts as txt.
var unescapedExtensions = map[string]struct{}{
	"txt":  {},
	"text": {},
	"md":   {},
	"json": {},
	"csv":  {},
}

func escapeEnabled(strategy template.Autoescape, name string) bool {
	switch strategy {
	case template.AutoescapeOff:
		return false
	case template.AutoescapeHTML:
		return true
	default:
		return escapeForName(name)
	}
}

func escapeForName(name string) bool {
	base := strings.TrimSuffix(path.Base(name), ".twig")
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(base), "."))
	_, plain := unescapedExtensions[ext]
	return !plain
}

// applyEscaping wraps sources that must not be escaped in an autoescape block.
// Child templates are left alone because extends must stay the first tag, so
// a child's blocks follow the root layout's strategy, not the child's own
// file name: a mail.txt.twig extending base.html.twig is escaped as HTML.
// Such children can opt out with an explicit autoescape block.
func applyEscaping(strategy template.Autoescape, name string, src []byte) []byte {
	if escapeEnabled(strategy, name) || extendsTag.Match(src) {
		return src
	}
	out := make([]byte, 0, len(src)+40)
	out = append(out, "{% autoescape off %}"...)
	out = append(out, src...)
	out = append(out, "{% endautoescape %}"...)
	return out
}
