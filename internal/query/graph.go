package query

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/claimledger/internal/brain"
	"github.com/ppiankov/claimledger/internal/extract"
)

// wikiLink matches [[target]] and [[target|alias]]
var wikiLink = regexp.MustCompile(`\[\[([^\]|]+)(?:\|[^\]]+)?\]\]`)

// Links returns the raw link targets of a knowledge file: frontmatter
// related entries first, then inline wiki links.
func Links(content string) []string {
	fm, body := extract.ParseFrontmatter(content)
	links := append([]string{}, fm.Related...)
	for _, m := range wikiLink.FindAllStringSubmatch(body, -1) {
		links = append(links, strings.TrimSpace(m[1]))
	}
	return links
}

// ResolveLink maps a possibly partial link target onto a file in files.
// Exact paths win; otherwise the first file with the same base name or
// the same stem (case-insensitive) is used.
func ResolveLink(target string, files []string) (string, bool) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", false
	}
	for _, f := range files {
		if f == target {
			return f, true
		}
	}

	base := path.Base(target)
	stem := strings.ToLower(strings.TrimSuffix(base, path.Ext(base)))
	for _, f := range files {
		fbase := path.Base(f)
		if fbase == base || strings.ToLower(strings.TrimSuffix(fbase, path.Ext(fbase))) == stem {
			return f, true
		}
	}
	return "", false
}

// ExpandRelated adds the files linked from selected, following links up to
// depth hops. The result is sorted and contains every selected file.
func ExpandRelated(b *brain.Brain, selected []string, depth int) []string {
	expanded := make(map[string]struct{}, len(selected))
	for _, f := range selected {
		expanded[f] = struct{}{}
	}

	files, err := b.ListFiles()
	if err == nil {
		frontier := selected
		for hop := 0; hop < depth && len(frontier) > 0; hop++ {
			var next []string
			for _, f := range frontier {
				content, err := b.ReadFile(f)
				if err != nil {
					continue
				}
				for _, link := range Links(content) {
					resolved, ok := ResolveLink(link, files)
					if !ok {
						continue
					}
					if _, seen := expanded[resolved]; seen {
						continue
					}
					expanded[resolved] = struct{}{}
					next = append(next, resolved)
				}
			}
			frontier = next
		}
	}

	out := make([]string, 0, len(expanded))
	for f := range expanded {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
