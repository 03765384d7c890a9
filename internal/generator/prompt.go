package generator

import (
	"fmt"
	"sort"
	"strings"

	"git.home.luguber.info/inful/pagesmith/internal/task"
)

const systemPrompt = `You are an expert full-stack engineer. Your task is to generate a
complete web application in a structured JSON response.

You must return a JSON object with a 'files' array.
Each object in the array must have 'path' (e.g., 'index.html', 'README.md', 'LICENSE')
and 'content' (the full string content of the file).

The response MUST include:
1.  index.html: A single, complete, responsive HTML file. Use Tailwind CSS via CDN.
    All JavaScript MUST be inline inside <script> tags.
2.  README.md: Professional documentation (Title, Description, Usage).
3.  LICENSE: The full text of the MIT License.

Follow the user's brief exactly.`

// buildPrompt renders the user-facing part of the model request. Revision
// rounds carry the current file contents so the model edits instead of
// regenerating from scratch.
func buildPrompt(t *task.Task, priorFiles map[string]string) string {
	var b strings.Builder

	if t.Round > 1 {
		fmt.Fprintf(&b, "REVISION (ROUND %d): Update the project based on this new brief: '%s'.", t.Round, t.Description)
		b.WriteString(" You MUST provide the complete, new versions of all files (index.html, README.md, LICENSE).")
	} else {
		fmt.Fprintf(&b, "NEW PROJECT (ROUND 1): Create a new project based on this brief: '%s'.", t.Description)
	}

	if names := attachmentNames(t); len(names) > 0 {
		fmt.Fprintf(&b, "\nThe project directory will include these files: %s.", strings.Join(names, ", "))
		b.WriteString(" Ensure your code (e.g., in index.html) correctly references them.")
	}

	if len(priorFiles) > 0 {
		b.WriteString("\n\nCurrent project files follow. Treat them as the starting point.\n")
		names := make([]string, 0, len(priorFiles))
		for name := range priorFiles {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "\n--- %s ---\n%s\n", name, priorFiles[name])
		}
	}

	return b.String()
}

func attachmentNames(t *task.Task) []string {
	names := make([]string, 0, len(t.Attachments))
	for _, a := range t.Attachments {
		names = append(names, a.Name)
	}
	return names
}
