package forge

// Repository is the subset of repository metadata this system needs.
type Repository struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Private       bool   `json:"private"`
	CloneURL      string `json:"clone_url"`
	HTMLURL       string `json:"html_url"`
	DefaultBranch string `json:"default_branch"`
}

// PagesSource is the desired publish target: branch plus root path. It is a
// target state, not an event log; publishing reconciles toward it.
type PagesSource struct {
	Branch string `json:"branch"`
	Path   string `json:"path"`
}

// PagesInfo is the current Pages configuration as reported by the API.
type PagesInfo struct {
	URL    string      `json:"html_url"`
	Status string      `json:"status"`
	Source PagesSource `json:"source"`
}

// Matches reports whether the live configuration already points at the target.
func (p PagesInfo) Matches(src PagesSource) bool {
	return p.Source.Branch == src.Branch && p.Source.Path == src.Path
}
