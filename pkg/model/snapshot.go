package model

// Snapshot is the asset-inventory belief state of the agent's server,
// regenerated wholesale by the auditor after each round. Only the latest
// snapshot is retained.
type Snapshot struct {
	Meta        SnapshotMeta      `yaml:"meta" json:"meta"`
	Services    []SnapshotService `yaml:"services,omitempty" json:"services,omitempty"`
	Projects    []SnapshotProject `yaml:"projects,omitempty" json:"projects,omitempty"`
	Tools       []SnapshotTool    `yaml:"tools,omitempty" json:"tools,omitempty"`
	Documents   []SnapshotDoc     `yaml:"documents,omitempty" json:"documents,omitempty"`
	Environment SnapshotEnv       `yaml:"environment,omitempty" json:"environment,omitempty"`
	Issues      []SnapshotIssue   `yaml:"issues,omitempty" json:"issues,omitempty"`
}

type SnapshotMeta struct {
	LastUpdated string `yaml:"last_updated" json:"last_updated"`
	Round       int64  `yaml:"round" json:"round"`
}

type SnapshotService struct {
	Name       string `yaml:"name" json:"name"`
	Port       int    `yaml:"port" json:"port"`
	Domain     string `yaml:"domain,omitempty" json:"domain,omitempty"`
	Status     string `yaml:"status" json:"status"`
	Health     string `yaml:"health" json:"health"`
	HealthNote string `yaml:"health_note,omitempty" json:"health_note,omitempty"`
	Path       string `yaml:"path" json:"path"`
	StartCmd   string `yaml:"start_cmd,omitempty" json:"start_cmd,omitempty"`
}

type SnapshotProject struct {
	Name        string `yaml:"name" json:"name"`
	Path        string `yaml:"path" json:"path"`
	Stack       string `yaml:"stack,omitempty" json:"stack,omitempty"`
	Entry       string `yaml:"entry,omitempty" json:"entry,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

type SnapshotTool struct {
	Path  string `yaml:"path" json:"path"`
	Usage string `yaml:"usage" json:"usage"`
}

type SnapshotDoc struct {
	Path    string `yaml:"path" json:"path"`
	Purpose string `yaml:"purpose" json:"purpose"`
}

type SnapshotEnv struct {
	OS          string   `yaml:"os,omitempty" json:"os,omitempty"`
	Runtime     string   `yaml:"runtime,omitempty" json:"runtime,omitempty"`
	Domain      string   `yaml:"domain,omitempty" json:"domain,omitempty"`
	SSL         bool     `yaml:"ssl,omitempty" json:"ssl,omitempty"`
	DiskUsage   string   `yaml:"disk_usage,omitempty" json:"disk_usage,omitempty"`
	KeyPackages []string `yaml:"key_packages,omitempty" json:"key_packages,omitempty"`
}

const (
	IssueOpen     = "open"
	IssueResolved = "resolved"
)

type SnapshotIssue struct {
	Severity   string `yaml:"severity" json:"severity"`
	Summary    string `yaml:"summary" json:"summary"`
	Detail     string `yaml:"detail,omitempty" json:"detail,omitempty"`
	Discovered int64  `yaml:"discovered" json:"discovered"`
	Status     string `yaml:"status" json:"status"`
}

// OpenIssues returns the issues still marked open.
func (x *Snapshot) OpenIssues() []SnapshotIssue {
	var open []SnapshotIssue
	for _, issue := range x.Issues {
		if issue.Status == IssueOpen {
			open = append(open, issue)
		}
	}
	return open
}

// IsEmpty reports whether the snapshot has no recorded assets yet.
func (x *Snapshot) IsEmpty() bool {
	return x == nil || (len(x.Services) == 0 && len(x.Projects) == 0 &&
		len(x.Tools) == 0 && len(x.Documents) == 0 && len(x.Issues) == 0 &&
		x.Meta.Round == 0)
}
