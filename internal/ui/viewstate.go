package ui

// Table identifies one of the three grouping tables.
type Table int

const (
	TableProcessHost Table = iota
	TableHost
	TableProcess

	tableCount = 3
)

func (t Table) String() string {
	switch t {
	case TableProcessHost:
		return "Process-Host"
	case TableHost:
		return "Host"
	case TableProcess:
		return "Process"
	}
	return "?"
}

type SortKey int

const (
	SortTotal SortKey = iota
	SortActive
	SortMax
)

func (k SortKey) String() string {
	switch k {
	case SortTotal:
		return "Total"
	case SortActive:
		return "Active"
	case SortMax:
		return "Max"
	}
	return "?"
}

// ViewState is the presentation state the input path mutates: which table
// has focus, each table's sort key and scroll offset. It is only touched
// from the UI goroutine.
type ViewState struct {
	focus  Table
	sort   [tableCount]SortKey
	offset [tableCount]int
}

// NewViewState focuses the process-host table with every table sorted by total.
func NewViewState() ViewState {
	return ViewState{focus: TableProcessHost}
}

func (v *ViewState) Focus() Table { return v.focus }

func (v *ViewState) SetFocus(t Table) {
	if t >= 0 && t < tableCount {
		v.focus = t
	}
}

func (v *ViewState) Sort(t Table) SortKey { return v.sort[t] }

// SetSort changes the focused table's sort key and scrolls it back to the top.
func (v *ViewState) SetSort(k SortKey) {
	v.sort[v.focus] = k
	v.offset[v.focus] = 0
}

func (v *ViewState) Offset(t Table) int { return v.offset[t] }

// Scroll moves the focused table by delta rows, keeping the offset within
// [0, total-visible].
func (v *ViewState) Scroll(delta, total, visible int) {
	v.offset[v.focus] = clampOffset(v.offset[v.focus]+delta, total, visible)
}

func (v *ViewState) ScrollTop() {
	v.offset[v.focus] = 0
}

func (v *ViewState) ScrollBottom(total, visible int) {
	v.offset[v.focus] = clampOffset(total, total, visible)
}

// Clamp re-applies the bounds to t after its row count changed.
func (v *ViewState) Clamp(t Table, total, visible int) {
	v.offset[t] = clampOffset(v.offset[t], total, visible)
}

// ResetOffsets scrolls every table to the top, as after a filter change.
func (v *ViewState) ResetOffsets() {
	v.offset = [tableCount]int{}
}

func clampOffset(off, total, visible int) int {
	max := total - visible
	if max < 0 {
		max = 0
	}
	if off > max {
		off = max
	}
	if off < 0 {
		off = 0
	}
	return off
}
