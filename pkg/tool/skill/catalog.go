package skill

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"awakener/pkg/model"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

type frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type disabledList struct {
	Disabled []string `yaml:"disabled"`
}

// ParseFrontmatter splits a SKILL.md document into its YAML frontmatter and
// markdown body. The document must start with a "---" line.
func ParseFrontmatter(doc string) (name, description, body string, err error) {
	doc = strings.TrimLeft(doc, "\uFEFF")
	if !strings.HasPrefix(doc, "---\n") && !strings.HasPrefix(doc, "---\r\n") {
		return "", "", "", goerr.New("missing YAML frontmatter")
	}
	rest := doc[strings.Index(doc, "\n")+1:]
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return "", "", "", goerr.New("unterminated YAML frontmatter")
	}
	var fm frontmatter
	if err := yaml.Unmarshal([]byte(rest[:idx]), &fm); err != nil {
		return "", "", "", goerr.Wrap(err, "failed to parse frontmatter")
	}
	if fm.Name == "" || fm.Description == "" {
		return "", "", "", goerr.New("frontmatter requires name and description")
	}
	body = rest[idx+len("\n---"):]
	if nl := strings.Index(body, "\n"); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = ""
	}
	return fm.Name, fm.Description, body, nil
}

// Scan walks the skills directory and returns the metadata of every valid
// skill. Directories without a parseable SKILL.md are skipped. Skills named
// in skills.yaml's disabled list are returned with Disabled set.
func Scan(skillsDir string) ([]*model.Skill, error) {
	entries, err := os.ReadDir(skillsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to read skills directory", goerr.V("dir", skillsDir))
	}

	disabled := loadDisabled(filepath.Join(skillsDir, "skills.yaml"))

	var skills []*model.Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(skillsDir, entry.Name())
		raw, err := os.ReadFile(filepath.Join(dir, "SKILL.md"))
		if err != nil {
			continue
		}
		name, desc, _, err := ParseFrontmatter(string(raw))
		if err != nil {
			continue
		}
		skills = append(skills, &model.Skill{
			Name:        name,
			Description: desc,
			Path:        dir,
			Disabled:    disabled[entry.Name()] || disabled[name],
			References:  listFiles(filepath.Join(dir, "references")),
			Scripts:     listFiles(filepath.Join(dir, "scripts")),
		})
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills, nil
}

func loadDisabled(path string) map[string]bool {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var list disabledList
	if err := yaml.Unmarshal(raw, &list); err != nil {
		return nil
	}
	set := make(map[string]bool, len(list.Disabled))
	for _, name := range list.Disabled {
		set[name] = true
	}
	return set
}

func listFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names
}
