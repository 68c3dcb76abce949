package agent

import (
	"fmt"
	"strings"

	"github.com/plainer/hub/internal/model"
)

// BuildSystemPrompt renders the instructions plus a snapshot of the
// workspace listing and the app types visible to it. Rebuilt on every
// iteration so the model sees files created earlier in the same run.
func BuildSystemPrompt(files []model.File, appTypes []model.AppType) string {
	var b strings.Builder
	b.WriteString(`You are a workspace assistant. You help the user manage files and build small apps on top of them.

You can create and edit files, and you can link "views" onto data files: a view renders a source file through an app type (table, board, calendar, document, or a custom HTML app). Prefer structured data files (CSV for tabular data, Markdown for documents) and link an appropriate view rather than describing content in chat.

Rules:
- Use the tools to act; do not claim to have created or changed anything without calling a tool.
- When asked to build an app over data, create the data file first, then link views with create_instance.
- Custom HTML apps must be fully self-contained documents.
- Refer to files by the IDs shown below or returned by tools.

`)

	b.WriteString("Current workspace files:\n")
	if len(files) == 0 {
		b.WriteString("(empty)\n")
	}
	for _, f := range files {
		role := "data"
		if f.IsInstance {
			role = "view"
		} else if f.FileType == model.FileTypeView {
			role = "html view"
		}
		fmt.Fprintf(&b, "- %s [%s] (id: %s)\n", f.Name, role, f.ID)
	}

	b.WriteString("\nAvailable app types:\n")
	for _, at := range appTypes {
		scope := "global"
		if !at.Global() {
			scope = "custom"
		}
		fmt.Fprintf(&b, "- %s (slug: %s, %s, renderer: %s)\n", at.Label, at.Slug, scope, at.Renderer)
	}
	return b.String()
}
