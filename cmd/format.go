package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/cloradar/cloradar/pkg/controller"
	"github.com/cloradar/cloradar/pkg/core"
	"github.com/cloradar/cloradar/pkg/filters"
	"github.com/cloradar/cloradar/pkg/index"
	"github.com/cloradar/cloradar/pkg/prefs"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1).
			Margin(0, 0, 1, 0)

	issueStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1).
			Margin(0, 0, 0, 2)

	issueTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	summaryStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("32"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196")).
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("196")).
			Padding(0, 1)

	noDataStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true).
			Margin(1, 0)

	urlStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
)

// formatNumber formats a number with K/M suffixes for readability
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	} else if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	} else {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
}

// formatTime formats a time relative to now or as an absolute date
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	if diff < 24*time.Hour {
		if diff < time.Hour {
			minutes := int(diff.Minutes())
			if minutes < 1 {
				return "just now"
			}
			return fmt.Sprintf("%d minutes ago", minutes)
		}
		hours := int(diff.Hours())
		return fmt.Sprintf("%d hours ago", hours)
	}

	if diff < 7*24*time.Hour {
		days := int(diff.Hours() / 24)
		return fmt.Sprintf("%d days ago", days)
	}

	if t.Year() == now.Year() {
		return t.Format("Jan 2, 15:04")
	}
	return t.Format("Jan 2, 2006")
}

// formatView renders a search view for the terminal.
func formatView(v controller.View) string {
	var out strings.Builder

	title := "cloradar: all issues"
	if text := v.Filters.TextValue(); text != "" {
		title = fmt.Sprintf("cloradar: %q", text)
	}
	out.WriteString(titleStyle.Render(title))
	out.WriteString("\n")

	if summary := formatFilters(v.Filters.Filters); summary != "" {
		out.WriteString(metaStyle.Render(summary))
		out.WriteString("\n")
	}

	switch v.State {
	case controller.Failed:
		out.WriteString(errorStyle.Render(v.Error))
		out.WriteString("\n")
		return out.String()
	case controller.Idle, controller.Loading:
		out.WriteString(noDataStyle.Render("Loading..."))
		out.WriteString("\n")
		return out.String()
	}

	total := v.Total()
	word := "results"
	if total == 1 {
		word = "result"
	}
	page := max(v.Filters.PageNumber, 1)
	out.WriteString(summaryStyle.Render(fmt.Sprintf("%s %s · page %d of %d · %s · %d per page",
		formatNumber(total), word, page, v.TotalPages(), filters.SortName(v.Query.SortBy), v.Query.Limit)))
	out.WriteString("\n\n")

	if v.NoResults() {
		msg := "We can't seem to find any issues that match your search. Browse all issues with `reset` and an empty query."
		if v.CanResetFilters() {
			msg = "We can't seem to find any issues that match your search. Try `reset` to clear the filters."
		}
		out.WriteString(noDataStyle.Render(msg))
		out.WriteString("\n")
		return out.String()
	}

	for i, issue := range v.Items() {
		out.WriteString(formatIssue(v.Query.Offset+i+1, issue))
		out.WriteString("\n")
	}
	return out.String()
}

func formatIssue(n int, issue core.Issue) string {
	var content strings.Builder
	content.WriteString(issueTitleStyle.Render(fmt.Sprintf("%d. %s", n, issue.Title)))
	content.WriteString("\n")

	meta := []string{issue.Project.Title()}
	if issue.Project.Foundation != "" {
		meta = append(meta, filters.DisplayName(core.FilterFoundation, issue.Project.Foundation))
	}
	if issue.Project.Maturity != "" {
		meta = append(meta, filters.DisplayName(core.FilterMaturity, issue.Project.Maturity))
	}
	if issue.Repository.Name != "" {
		meta = append(meta, fmt.Sprintf("%s#%d", issue.Repository.Name, issue.Number))
	}
	if issue.Repository.Stars > 0 {
		meta = append(meta, "★ "+formatNumber(issue.Repository.Stars))
	}
	if !issue.PublishedAt.IsZero() {
		meta = append(meta, formatTime(issue.PublishedAt))
	}
	content.WriteString(metaStyle.Render(strings.Join(meta, " · ")))

	if len(issue.Labels) > 0 {
		content.WriteString("\n")
		content.WriteString(labelStyle.Render(strings.Join(issue.Labels, ", ")))
	}
	content.WriteString("\n")
	content.WriteString(urlStyle.Render(issue.URL))
	return issueStyle.Render(content.String())
}

func formatFilters(f core.Filters) string {
	var parts []string
	for _, kind := range core.FilterKinds {
		if len(f[kind]) == 0 {
			continue
		}
		names := make([]string, 0, len(f[kind]))
		for _, v := range f[kind] {
			names = append(names, filters.DisplayName(kind, v))
		}
		parts = append(parts, filters.KindTitle(kind)+": "+strings.Join(names, ", "))
	}
	return strings.Join(parts, " | ")
}

func formatPreferences(p prefs.Preferences) string {
	var out strings.Builder
	out.WriteString(titleStyle.Render("Preferences"))
	out.WriteString("\n")
	fmt.Fprintf(&out, "Results per page: %d\n", p.Search.Limit)
	fmt.Fprintf(&out, "Sort by:          %s\n", filters.SortName(p.Search.Sort.By))
	fmt.Fprintf(&out, "Theme:            %s (%s)\n", p.Theme.Configured, p.Theme.Effective)
	return out.String()
}

// formatStats formats local index statistics for display
func formatStats(stats index.Stats) string {
	var out strings.Builder
	out.WriteString(titleStyle.Render("Local index"))
	out.WriteString("\n")
	if stats.Repositories == 0 {
		out.WriteString(noDataStyle.Render("No repositories registered yet. Add projects to the [tracker] configuration and run `cloradar track`."))
		out.WriteString("\n")
		return out.String()
	}
	fmt.Fprintf(&out, "Projects:     %s\n", formatNumber(stats.Projects))
	fmt.Fprintf(&out, "Repositories: %s\n", formatNumber(stats.Repositories))
	fmt.Fprintf(&out, "Issues:       %s\n", formatNumber(stats.Issues))
	return out.String()
}
