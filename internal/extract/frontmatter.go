package extract

import (
	"fmt"
	"strings"

	"github.com/ppiankov/claimledger/internal/model"
	"gopkg.in/yaml.v3"
)

// Frontmatter is the leading YAML metadata block of a knowledge file
type Frontmatter struct {
	Source     string           // default source locator
	Tags       []string
	Confidence model.Confidence // medium when absent or invalid
	Related    []string         // links to other knowledge files
}

// ParseFrontmatter splits an optional "---" delimited YAML block from the
// body. Malformed YAML yields empty metadata rather than an error.
func ParseFrontmatter(content string) (Frontmatter, string) {
	fm := Frontmatter{Confidence: model.ConfidenceMedium}
	if !strings.HasPrefix(content, "---") {
		return fm, content
	}
	parts := strings.SplitN(content, "---", 3)
	if len(parts) < 3 {
		return fm, content
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(parts[1]), &raw); err != nil || raw == nil {
		return fm, parts[2]
	}

	if v, ok := raw["source"]; ok && v != nil {
		fm.Source = strings.TrimSpace(fmt.Sprint(v))
	}
	if tags, ok := raw["tags"].([]any); ok {
		for _, t := range tags {
			fm.Tags = append(fm.Tags, fmt.Sprint(t))
		}
	}
	if c, ok := raw["confidence"].(string); ok {
		fm.Confidence = model.ConfidenceOr(c, model.ConfidenceMedium)
	}
	switch related := raw["related"].(type) {
	case []any:
		for _, r := range related {
			fm.Related = append(fm.Related, strings.TrimSpace(fmt.Sprint(r)))
		}
	case string:
		for _, r := range strings.Split(strings.Trim(related, "[]"), ",") {
			if r = strings.TrimSpace(r); r != "" {
				fm.Related = append(fm.Related, r)
			}
		}
	}

	return fm, parts[2]
}
