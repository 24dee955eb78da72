package ui

import (
	"fmt"
	"strings"

	"github.com/muurk/rmtemplates/internal/templates"
)

// RenderTemplateList draws the registry partition: device templates first,
// then local additions, then pending deletions. Empty sections are omitted.
func RenderTemplateList(p templates.Partition) string {
	var b strings.Builder

	section := func(title string, list []templates.Template) {
		if len(list) == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(SectionTitleStyle.Render(fmt.Sprintf("%s (%d)", title, len(list))))
		b.WriteString("\n")
		for _, t := range list {
			b.WriteString(renderTemplateRow(t))
			b.WriteString("\n")
		}
	}

	section("On device", p.Synced)
	section("To upload", p.Unsynced)
	section("To delete", p.DeletionPending)

	if b.Len() == 0 {
		return HelpStyle.Render("No templates") + "\n"
	}
	return b.String()
}

func renderTemplateRow(t templates.Template) string {
	style, marker := TemplateStyle(t.State)
	label := t.Name
	if t.Name != t.Filename {
		label += HelpStyle.Render("(" + t.Filename + ")")
	}
	row := fmt.Sprintf("    %s %s", marker, style.Render(label))
	if t.Landscape {
		row += " " + HelpStyle.Render("landscape")
	}
	if t.LocalSourcePath != "" {
		row += " " + ProgressFileStyle.Render(t.LocalSourcePath)
	}
	return row
}
