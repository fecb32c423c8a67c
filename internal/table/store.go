package table

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"churn-ops-dashboard/internal/customer"
)

const DefaultPageSize = 10

// PageSizes are the page sizes offered by the pagination controls.
var PageSizes = []int{10, 20, 30, 40, 50}

var ErrUnknownColumn = errors.New("unknown column")

// SortKey is one entry of a multi-column sort.
type SortKey struct {
	Column ColumnID `json:"column" yaml:"column"`
	Desc   bool     `json:"desc,omitempty" yaml:"desc,omitempty"`
}

// ParseSort reads a comma separated sort order such as "-churn_probability,name".
// A leading "-" sorts that column descending. Columns are not checked here.
func ParseSort(raw string) []SortKey {
	var keys []SortKey
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" || part == "-" {
			continue
		}
		col, desc := strings.CutPrefix(part, "-")
		keys = append(keys, SortKey{Column: ColumnID(col), Desc: desc})
	}
	return keys
}

// State is the serializable part of a Store: everything except the records
// themselves and the selection.
type State struct {
	Sort      []SortKey           `json:"sort,omitempty" yaml:"sort,omitempty"`
	Filters   map[ColumnID]string `json:"filters,omitempty" yaml:"filters,omitempty"`
	Hidden    []ColumnID          `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	PageIndex int                 `json:"page_index,omitempty" yaml:"page_index,omitempty"`
	PageSize  int                 `json:"page_size,omitempty" yaml:"page_size,omitempty"`
	Order     []customer.ID       `json:"order,omitempty" yaml:"order,omitempty"`
}

// Validate checks every column reference and filter value without needing a
// loaded Store.
func (st State) Validate() error {
	sorted := map[ColumnID]bool{}
	for _, k := range st.Sort {
		if _, ok := Lookup(k.Column); !ok {
			return fmt.Errorf("sort: %w %q", ErrUnknownColumn, k.Column)
		}
		if sorted[k.Column] {
			return fmt.Errorf("column %s sorted twice", k.Column)
		}
		sorted[k.Column] = true
	}
	for col, v := range st.Filters {
		c, ok := Lookup(col)
		if !ok {
			return fmt.Errorf("filter: %w %q", ErrUnknownColumn, col)
		}
		if !c.Filterable() {
			return fmt.Errorf("column %s cannot be filtered", col)
		}
		if v == "" {
			continue
		}
		if err := ValidateFilter(col, v); err != nil {
			return err
		}
	}
	for _, col := range st.Hidden {
		c, ok := Lookup(col)
		if !ok {
			return fmt.Errorf("hidden: %w %q", ErrUnknownColumn, col)
		}
		if !c.Hideable {
			return fmt.Errorf("column %s cannot be hidden", col)
		}
	}
	if st.PageSize < 0 || st.PageIndex < 0 {
		return fmt.Errorf("pagination must not be negative")
	}
	return nil
}

// PageView is one rendered page of the table.
type PageView struct {
	Rows      []customer.Record
	PageIndex int
	PageSize  int
	PageCount int
	// Filtered counts rows that pass the filters, Total counts every loaded row.
	Filtered int
	Total    int
}

func (p PageView) CanPrevious() bool { return p.PageIndex > 0 }
func (p PageView) CanNext() bool     { return p.PageIndex+1 < p.PageCount }

// Facet is one distinct column value and how many rows carry it.
type Facet struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Store holds a loaded customer collection plus all table state. Records are
// never mutated; display order is a permutation of ids kept beside them.
// A Store is not safe for concurrent use.
type Store struct {
	records   map[customer.ID]customer.Record
	order     []customer.ID
	sort      []SortKey
	filters   map[ColumnID]string
	hidden    map[ColumnID]bool
	selected  map[customer.ID]bool
	pageIndex int
	pageSize  int
}

// NewStore builds a store over records in their fetched order. A pageSize of
// zero or less selects DefaultPageSize.
func NewStore(records []customer.Record, pageSize int) (*Store, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	s := &Store{
		filters:  map[ColumnID]string{},
		hidden:   map[ColumnID]bool{},
		selected: map[customer.ID]bool{},
		pageSize: pageSize,
	}
	if err := s.load(records); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(records []customer.Record) error {
	byID := make(map[customer.ID]customer.Record, len(records))
	order := make([]customer.ID, 0, len(records))
	for i, r := range records {
		if r.CustomerID == "" {
			return fmt.Errorf("record at index %d has no customer_id", i)
		}
		if _, dup := byID[r.CustomerID]; dup {
			return fmt.Errorf("duplicate customer_id %s", r.CustomerID)
		}
		byID[r.CustomerID] = r
		order = append(order, r.CustomerID)
	}
	s.records = byID
	s.order = order
	return nil
}

// Replace swaps in a freshly loaded collection. Ids that survive keep their
// manual position and selection; new ids are appended in fetched order.
func (s *Store) Replace(records []customer.Record) error {
	prevOrder := s.order
	prevSelected := s.selected
	if err := s.load(records); err != nil {
		return err
	}
	fetched := s.order
	order := make([]customer.ID, 0, len(fetched))
	for _, id := range prevOrder {
		if _, ok := s.records[id]; ok {
			order = append(order, id)
		}
	}
	kept := make(map[customer.ID]bool, len(order))
	for _, id := range order {
		kept[id] = true
	}
	for _, id := range fetched {
		if !kept[id] {
			order = append(order, id)
		}
	}
	s.order = order

	s.selected = map[customer.ID]bool{}
	for id := range prevSelected {
		if _, ok := s.records[id]; ok {
			s.selected[id] = true
		}
	}
	return nil
}

// Len is the number of loaded records.
func (s *Store) Len() int { return len(s.order) }

// Record returns the record with the given id.
func (s *Store) Record(id customer.ID) (customer.Record, bool) {
	r, ok := s.records[id]
	return r, ok
}

// Order returns the manual display order.
func (s *Store) Order() []customer.ID {
	return append([]customer.ID(nil), s.order...)
}

// SetFilter sets the single filter value of a column; an empty value clears
// it. Changing a filter returns to the first page.
func (s *Store) SetFilter(col ColumnID, value string) error {
	c, ok := Lookup(col)
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownColumn, col)
	}
	if !c.Filterable() {
		return fmt.Errorf("column %s cannot be filtered", col)
	}
	if value == "" {
		delete(s.filters, col)
	} else {
		if err := ValidateFilter(col, value); err != nil {
			return err
		}
		s.filters[col] = value
	}
	s.pageIndex = 0
	return nil
}

// Filters returns a copy of the active filters.
func (s *Store) Filters() map[ColumnID]string {
	out := make(map[ColumnID]string, len(s.filters))
	for k, v := range s.filters {
		out[k] = v
	}
	return out
}

// SetSort replaces the sort order. Keys apply in order; later keys break ties.
func (s *Store) SetSort(keys ...SortKey) error {
	seen := map[ColumnID]bool{}
	for _, k := range keys {
		if _, ok := Lookup(k.Column); !ok {
			return fmt.Errorf("%w %q", ErrUnknownColumn, k.Column)
		}
		if seen[k.Column] {
			return fmt.Errorf("column %s sorted twice", k.Column)
		}
		seen[k.Column] = true
	}
	s.sort = append([]SortKey(nil), keys...)
	s.pageIndex = 0
	return nil
}

// ToggleSort cycles a single-column sort: ascending, descending, none.
func (s *Store) ToggleSort(col ColumnID) error {
	if len(s.sort) == 1 && s.sort[0].Column == col {
		if !s.sort[0].Desc {
			return s.SetSort(SortKey{Column: col, Desc: true})
		}
		return s.SetSort()
	}
	return s.SetSort(SortKey{Column: col})
}

// Sort returns a copy of the sort order.
func (s *Store) Sort() []SortKey {
	return append([]SortKey(nil), s.sort...)
}

// SetColumnVisibility shows or hides a hideable column.
func (s *Store) SetColumnVisibility(col ColumnID, visible bool) error {
	c, ok := Lookup(col)
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownColumn, col)
	}
	if !c.Hideable {
		return fmt.Errorf("column %s cannot be hidden", col)
	}
	if visible {
		delete(s.hidden, col)
	} else {
		s.hidden[col] = true
	}
	return nil
}

// VisibleColumns lists the columns to render, in display order.
func (s *Store) VisibleColumns() []Column {
	out := make([]Column, 0, len(Columns))
	for _, c := range Columns {
		if !s.hidden[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// SetPageSize changes the page size and keeps the current top row on screen.
func (s *Store) SetPageSize(size int) error {
	if size <= 0 {
		return fmt.Errorf("page size must be positive, got %d", size)
	}
	top := s.pageIndex * s.pageSize
	s.pageSize = size
	s.pageIndex = top / size
	return nil
}

// SetPageIndex moves to a page; the index is clamped to the available pages.
func (s *Store) SetPageIndex(index int) {
	if index < 0 {
		index = 0
	}
	if last := pageCount(len(s.Filtered()), s.pageSize) - 1; index > last {
		index = max(last, 0)
	}
	s.pageIndex = index
}

// SetPagination sets page size then page index.
func (s *Store) SetPagination(index, size int) error {
	if err := s.SetPageSize(size); err != nil {
		return err
	}
	s.SetPageIndex(index)
	return nil
}

func (s *Store) NextPage()     { s.SetPageIndex(s.pageIndex + 1) }
func (s *Store) PreviousPage() { s.SetPageIndex(s.pageIndex - 1) }

// Filtered runs the row pipeline without pagination: manual order, then
// filters, then a stable sort.
func (s *Store) Filtered() []customer.Record {
	rows := s.filteredExcept("")
	s.sortRows(rows)
	return rows
}

func (s *Store) filteredExcept(skip ColumnID) []customer.Record {
	rows := make([]customer.Record, 0, len(s.order))
	for _, id := range s.order {
		r := s.records[id]
		if s.matches(r, skip) {
			rows = append(rows, r)
		}
	}
	return rows
}

func (s *Store) matches(r customer.Record, skip ColumnID) bool {
	for col, v := range s.filters {
		if col == skip {
			continue
		}
		c, ok := Lookup(col)
		if !ok || c.Filter == nil {
			continue
		}
		if !c.Filter(r, v) {
			return false
		}
	}
	return true
}

func (s *Store) sortRows(rows []customer.Record) {
	if len(s.sort) == 0 {
		return
	}
	keys := make([]Column, 0, len(s.sort))
	desc := make([]bool, 0, len(s.sort))
	for _, k := range s.sort {
		if c, ok := Lookup(k.Column); ok {
			keys = append(keys, c)
			desc = append(desc, k.Desc)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		for n, c := range keys {
			if desc[n] {
				a, b = rows[j], rows[i]
			} else {
				a, b = rows[i], rows[j]
			}
			if c.Less(a, b) {
				return true
			}
			if c.Less(b, a) {
				return false
			}
		}
		return false
	})
}

// Page returns the current page of the filtered, sorted rows.
func (s *Store) Page() PageView {
	rows := s.Filtered()
	count := pageCount(len(rows), s.pageSize)
	index := s.pageIndex
	if index > count-1 {
		index = max(count-1, 0)
	}
	start := index * s.pageSize
	end := min(start+s.pageSize, len(rows))
	if start > end {
		start = end
	}
	return PageView{
		Rows:      rows[start:end],
		PageIndex: index,
		PageSize:  s.pageSize,
		PageCount: count,
		Filtered:  len(rows),
		Total:     len(s.order),
	}
}

func pageCount(rows, size int) int {
	if size <= 0 {
		return 0
	}
	return (rows + size - 1) / size
}

// Reorder moves activeID to the manual position currently held by overID.
// It is a no-op when the ids are equal or either is unknown.
func (s *Store) Reorder(activeID, overID customer.ID) bool {
	if activeID == overID {
		return false
	}
	from, to := -1, -1
	for i, id := range s.order {
		switch id {
		case activeID:
			from = i
		case overID:
			to = i
		}
	}
	if from < 0 || to < 0 {
		return false
	}
	s.order = arrayMove(s.order, from, to)
	return true
}

func arrayMove(ids []customer.ID, from, to int) []customer.ID {
	out := make([]customer.ID, 0, len(ids))
	moved := ids[from]
	out = append(out, ids[:from]...)
	out = append(out, ids[from+1:]...)
	out = append(out[:to], append([]customer.ID{moved}, out[to:]...)...)
	return out
}

// ToggleSelected selects or deselects one row. Unknown ids are ignored.
func (s *Store) ToggleSelected(id customer.ID, selected bool) bool {
	if _, ok := s.records[id]; !ok {
		return false
	}
	if selected {
		s.selected[id] = true
	} else {
		delete(s.selected, id)
	}
	return true
}

// ToggleAllOnPage selects or deselects every row of the current page.
func (s *Store) ToggleAllOnPage(selected bool) {
	for _, r := range s.Page().Rows {
		s.ToggleSelected(r.CustomerID, selected)
	}
}

// ClearSelection deselects everything.
func (s *Store) ClearSelection() {
	s.selected = map[customer.ID]bool{}
}

func (s *Store) IsSelected(id customer.ID) bool {
	return s.selected[id]
}

// PageSelection reports whether all or some rows of the current page are selected.
func (s *Store) PageSelection() (all, some bool) {
	rows := s.Page().Rows
	n := 0
	for _, r := range rows {
		if s.selected[r.CustomerID] {
			n++
		}
	}
	return len(rows) > 0 && n == len(rows), n > 0
}

// SelectedTargets returns the ids of selected rows that pass the current
// filters, across all pages, in display order. Selected rows hidden by a
// filter stay selected but are not targeted.
func (s *Store) SelectedTargets() []customer.ID {
	var out []customer.ID
	for _, r := range s.Filtered() {
		if s.selected[r.CustomerID] {
			out = append(out, r.CustomerID)
		}
	}
	return out
}

// State captures the serializable table state.
func (s *Store) State() State {
	st := State{
		Sort:      s.Sort(),
		PageIndex: s.pageIndex,
		PageSize:  s.pageSize,
		Order:     s.Order(),
	}
	if len(s.filters) > 0 {
		st.Filters = s.Filters()
	}
	for _, c := range Columns {
		if s.hidden[c.ID] {
			st.Hidden = append(st.Hidden, c.ID)
		}
	}
	return st
}

// ApplyState restores a captured state. Order entries for ids that are no
// longer loaded are skipped; ids missing from the order keep their relative
// position after the ordered ones.
//
// An invalid state is rejected before anything changes.
func (s *Store) ApplyState(st State) error {
	if err := st.Validate(); err != nil {
		return err
	}

	s.sort = append([]SortKey(nil), st.Sort...)
	s.filters = map[ColumnID]string{}
	for col, v := range st.Filters {
		if v != "" {
			s.filters[col] = v
		}
	}
	s.hidden = map[ColumnID]bool{}
	for _, col := range st.Hidden {
		s.hidden[col] = true
	}
	if len(st.Order) > 0 {
		s.applyOrder(st.Order)
	}
	size := st.PageSize
	if size <= 0 {
		size = s.pageSize
	}
	s.pageIndex = 0
	return s.SetPagination(st.PageIndex, size)
}

func (s *Store) applyOrder(order []customer.ID) {
	next := make([]customer.ID, 0, len(s.order))
	placed := make(map[customer.ID]bool, len(s.order))
	for _, id := range order {
		if _, ok := s.records[id]; ok && !placed[id] {
			next = append(next, id)
			placed[id] = true
		}
	}
	for _, id := range s.order {
		if !placed[id] {
			next = append(next, id)
		}
	}
	s.order = next
}

// Facets counts the distinct values of a column over the rows that pass every
// other filter, most frequent first.
func (s *Store) Facets(col ColumnID) ([]Facet, error) {
	c, ok := Lookup(col)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownColumn, col)
	}
	counts := map[string]int{}
	for _, r := range s.filteredExcept(col) {
		counts[c.FacetKey(r)]++
	}
	out := make([]Facet, 0, len(counts))
	for v, n := range counts {
		out = append(out, Facet{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out, nil
}
