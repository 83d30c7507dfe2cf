package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"checklist/api/internal/mirror"
	"checklist/api/internal/model"
)

const clearScreen = "\033[H\033[2J"

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	mutedStyle    = lipgloss.NewStyle().Faint(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	selectedStyle = lipgloss.NewStyle().Bold(true).Reverse(true)
	doneStyle     = lipgloss.NewStyle().Faint(true).Strikethrough(true)
)

func renderCategories(categories []model.Category) string {
	if len(categories) == 0 {
		return mutedStyle.Render("no categories") + "\n"
	}
	var b strings.Builder
	for _, category := range categories {
		fmt.Fprintf(&b, "%4d  %s\n", category.ID, category.Name)
	}
	return b.String()
}

func renderItems(items []model.Item) string {
	if len(items) == 0 {
		return mutedStyle.Render("no items") + "\n"
	}
	var b strings.Builder
	for _, item := range items {
		b.WriteString(itemLine(item, false))
	}
	return b.String()
}

func itemLine(item model.Item, pending bool) string {
	box := "[ ]"
	name := item.Name
	if item.Completed {
		box = "[x]"
		name = doneStyle.Render(name)
	}
	id := fmt.Sprintf("%4d", item.ID)
	if pending {
		id = pendingStyle.Render("   …")
	}
	line := fmt.Sprintf("%s  %s %s", id, box, name)
	if item.Attribution != "" {
		line += " " + mutedStyle.Render("("+item.Attribution+")")
	}
	return line + "\n"
}

func renderView(view mirror.View) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Categories") + "\n")
	if len(view.Categories) == 0 {
		b.WriteString(mutedStyle.Render("no categories") + "\n")
	}
	for _, category := range view.Categories {
		line := fmt.Sprintf("%4d  %s", category.ID, category.Name)
		switch {
		case category.Pending:
			line = pendingStyle.Render(fmt.Sprintf("   …  %s", category.Name))
		case category.ID == view.Selected:
			line = selectedStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	if view.Selected == 0 {
		return b.String()
	}
	b.WriteString("\n" + titleStyle.Render("Items") + "\n")
	if len(view.Items) == 0 {
		b.WriteString(mutedStyle.Render("no items") + "\n")
	}
	for _, item := range view.Items {
		b.WriteString(itemLine(item.Item, item.Pending))
	}
	return b.String()
}
