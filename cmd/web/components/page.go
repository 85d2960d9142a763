package components

import (
	"slices"
	"strconv"

	"github.com/cloradar/cloradar/cmd/web/components/types"
	"github.com/cloradar/cloradar/pkg/controller"
	"github.com/cloradar/cloradar/pkg/core"
	"github.com/cloradar/cloradar/pkg/filters"
	"github.com/cloradar/cloradar/pkg/prefs"
	"github.com/cloradar/cloradar/pkg/urlstate"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const searchPath = "/search"

// pageWindow is how many page links are shown on each side of the current
// page.
const pageWindow = 2

// NewSearchPage converts a controller view into template data.
func NewSearchPage(v controller.View, version string) types.SearchPage {
	f := v.Filters
	page := max(f.PageNumber, 1)

	data := types.SearchPage{
		Title:           "Search issues",
		Version:         version,
		Theme:           v.Prefs.Theme.Effective,
		ThemeConfigured: v.Prefs.Theme.Configured,
		RawQuery:        v.RawQuery,
		Text:            f.TextValue(),
		Loading:         v.Loading,
		Error:           v.Error,
		ScrollY:         v.ScrollY,
		Requests:        v.Issued,
		Total:           v.Total(),
		Page:            page,
		TotalPages:      v.TotalPages(),
		FilterGroups:    filterGroups(f),
		SortOptions:     sortOptions(v.Prefs.Search.Sort.By),
		LimitOptions:    limitOptions(v.Prefs.Search.Limit),
		ThemeOptions:    themeOptions(v.Prefs.Theme.Configured),
		NoResults:       v.NoResults(),
		CanResetFilters: v.CanResetFilters(),
		BrowseAllHref:   searchPath,
	}
	if f.Text != nil {
		data.Title = f.TextValue() + " - Search issues"
	}
	data.ActiveFilters = filters.NewEditor(f.Filters).Count()
	if data.CanResetFilters {
		data.ResetHref = urlstate.Path(searchPath, urlstate.SearchFilters{Text: f.Text})
	}
	for _, issue := range v.Items() {
		data.Issues = append(data.Issues, issueCard(issue))
	}
	if v.Results != nil {
		data.Pagination = pagination(f, page, data.TotalPages)
	}
	return data
}

func filterGroups(f urlstate.SearchFilters) []types.FilterGroup {
	var groups []types.FilterGroup
	editor := filters.NewEditor(f.Filters)
	for _, kind := range core.FilterKinds {
		selected := editor.Selected(kind)
		group := types.FilterGroup{Kind: string(kind), Title: filters.KindTitle(kind)}

		options := filters.Options(kind)
		// Values from a shared link that the catalog doesn't know still
		// need a way to be deselected.
		for _, value := range selected {
			if !slices.ContainsFunc(options, func(o filters.Option) bool { return o.Value == value }) {
				options = append(options, filters.Option{Value: value, Name: filters.DisplayName(kind, value)})
			}
		}

		for _, opt := range options {
			isSelected := editor.IsSelected(kind, opt.Value)
			toggled := filters.NewEditor(f.Filters)
			toggled.Toggle(kind, opt.Value, !isSelected)
			next := urlstate.SearchFilters{Text: f.Text, Filters: toggled.Snapshot()}
			group.Options = append(group.Options, types.FilterOption{
				Value:    opt.Value,
				Name:     opt.Name,
				Selected: isSelected,
				Href:     urlstate.Path(searchPath, next),
			})
		}
		groups = append(groups, group)
	}
	return groups
}

func sortOptions(current core.SortBy) []types.SelectOption {
	var out []types.SelectOption
	for _, by := range core.SortOptions {
		out = append(out, types.SelectOption{Value: string(by), Name: filters.SortName(by), Selected: by == current})
	}
	return out
}

func limitOptions(current int) []types.SelectOption {
	var out []types.SelectOption
	for _, limit := range prefs.Limits {
		s := strconv.Itoa(limit)
		out = append(out, types.SelectOption{Value: s, Name: s, Selected: limit == current})
	}
	return out
}

func themeOptions(current string) []types.SelectOption {
	title := cases.Title(language.English)
	var out []types.SelectOption
	for _, theme := range prefs.Themes {
		out = append(out, types.SelectOption{Value: theme, Name: title.String(theme), Selected: theme == current})
	}
	return out
}

func issueCard(issue core.Issue) types.IssueCard {
	return types.IssueCard{
		Title:          issue.Title,
		URL:            issue.URL,
		Number:         issue.Number,
		Labels:         issue.Labels,
		PublishedAt:    issue.PublishedAt,
		ProjectName:    issue.Project.Title(),
		ProjectLogo:    issue.Project.LogoURL,
		Foundation:     filters.DisplayName(core.FilterFoundation, issue.Project.Foundation),
		Maturity:       issue.Project.Maturity,
		RepositoryName: issue.Repository.Name,
		RepositoryURL:  issue.Repository.URL,
		Stars:          issue.Repository.Stars,
		Languages:      issue.Repository.Languages,
		Topics:         issue.Repository.Topics,
	}
}

func pagination(f urlstate.SearchFilters, page, total int) types.Pagination {
	href := func(n int) string {
		return urlstate.Path(searchPath, urlstate.SearchFilters{PageNumber: n, Text: f.Text, Filters: f.Filters})
	}

	var p types.Pagination
	if total <= 1 {
		return p
	}
	if page > 1 {
		p.Prev = href(page - 1)
	}
	if page < total {
		p.Next = href(page + 1)
	}

	last := 0
	for n := 1; n <= total; n++ {
		if n != 1 && n != total && (n < page-pageWindow || n > page+pageWindow) {
			continue
		}
		if last != 0 && n > last+1 {
			p.Pages = append(p.Pages, types.PageLink{Gap: true})
		}
		p.Pages = append(p.Pages, types.PageLink{Number: n, Href: href(n), Current: n == page})
		last = n
	}
	return p
}
