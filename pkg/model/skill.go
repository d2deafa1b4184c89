package model

// Skill is one entry in the skill catalog: a directory under the skills
// root holding a SKILL.md plus optional references and scripts.
type Skill struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Path        string   `json:"path" yaml:"-"`
	Disabled    bool     `json:"disabled" yaml:"-"`
	References  []string `json:"references,omitempty" yaml:"-"`
	Scripts     []string `json:"scripts,omitempty" yaml:"-"`
}
