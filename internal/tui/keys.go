package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up         key.Binding
	Down       key.Binding
	Select     key.Binding
	SelectPage key.Binding
	Sort       key.Binding
	SortColumn key.Binding
	Filter     key.Binding
	Status     key.Binding
	NextPage   key.Binding
	PrevPage   key.Binding
	PageSize   key.Binding
	MoveUp     key.Binding
	MoveDown   key.Binding
	Notify     key.Binding
	Predict    key.Binding
	Detail     key.Binding
	Back       key.Binding
	Reload     key.Binding
	Quit       key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Select, k.Sort, k.Filter, k.Notify, k.Predict, k.Detail, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.NextPage, k.PrevPage, k.PageSize},
		{k.Select, k.SelectPage, k.MoveUp, k.MoveDown},
		{k.Sort, k.SortColumn, k.Filter, k.Status},
		{k.Notify, k.Predict, k.Detail, k.Reload, k.Quit},
	}
}

var keys = keyMap{
	Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Select:     key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "select")),
	SelectPage: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "select page")),
	Sort:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort")),
	SortColumn: key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "sort column")),
	Filter:     key.NewBinding(key.WithKeys("f", "/"), key.WithHelp("f", "filter name")),
	Status:     key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "status filter")),
	NextPage:   key.NewBinding(key.WithKeys("n", "right"), key.WithHelp("n", "next page")),
	PrevPage:   key.NewBinding(key.WithKeys("p", "left"), key.WithHelp("p", "prev page")),
	PageSize:   key.NewBinding(key.WithKeys("z"), key.WithHelp("z", "page size")),
	MoveUp:     key.NewBinding(key.WithKeys("K"), key.WithHelp("K", "move up")),
	MoveDown:   key.NewBinding(key.WithKeys("J"), key.WithHelp("J", "move down")),
	Notify:     key.NewBinding(key.WithKeys("N"), key.WithHelp("N", "notify")),
	Predict:    key.NewBinding(key.WithKeys("P"), key.WithHelp("P", "predict")),
	Detail:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("⏎", "detail")),
	Back:       key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Reload:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}
