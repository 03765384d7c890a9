// Package generator turns a task description into complete site files by
// calling a generative model with a JSON response schema.
package generator

// The three files every generated site consists of. The model must return
// full replacement content for each; partial output is rejected.
const (
	FileIndex   = "index.html"
	FileReadme  = "README.md"
	FileLicense = "LICENSE"
)

// RequiredFiles lists the complete expected output set in publish order.
var RequiredFiles = []string{FileIndex, FileReadme, FileLicense}

// GeneratedSite is a validated model output: exactly the required files, each
// non-empty.
type GeneratedSite struct {
	Files map[string]string
}

// Bytes returns the site as path to raw content, ready for committing.
func (s *GeneratedSite) Bytes() map[string][]byte {
	out := make(map[string][]byte, len(s.Files))
	for name, content := range s.Files {
		out[name] = []byte(content)
	}
	return out
}
