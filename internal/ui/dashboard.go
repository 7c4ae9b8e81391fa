package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/nozo-moto/tcpcount/internal/filter"
	"github.com/nozo-moto/tcpcount/internal/notice"
	"github.com/nozo-moto/tcpcount/internal/tracker"
)

const (
	pageMain   = "main"
	pageFilter = "filter"

	noticeTTL      = 5 * time.Second
	defaultVisible = 15
)

// Engine is the part of the tracking engine the dashboard talks to.
type Engine interface {
	Current() *tracker.State
	SetFilter(filter.Predicate)
	Reset()
	Notices() *notice.Board
}

type Options struct {
	Refresh time.Duration
	Logger  *zap.SugaredLogger
}

// Dashboard renders the published engine state on a fixed cadence and turns
// keys into view-state changes or engine requests. Everything except Run's
// refresh goroutine happens on the tview event goroutine.
type Dashboard struct {
	app     *tview.Application
	engine  Engine
	refresh time.Duration
	log     *zap.SugaredLogger
	now     func() time.Time
	quit    func()

	pages       *tview.Pages
	graphView   *tview.TextView
	summaryView *tview.TextView
	statusView  *tview.TextView
	tables      [tableCount]*tview.Table
	form        *FilterForm

	view        ViewState
	rowCounts   [tableCount]int
	lastFilter  filter.Predicate
	notice      *notice.Notice
	noticeUntil time.Time
}

func NewDashboard(engine Engine, opt Options) *Dashboard {
	if opt.Refresh <= 0 {
		opt.Refresh = 250 * time.Millisecond
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop().Sugar()
	}

	app := tview.NewApplication()
	d := &Dashboard{
		app:     app,
		engine:  engine,
		refresh: opt.Refresh,
		log:     opt.Logger,
		now:     time.Now,
		quit:    app.Stop,
		pages:   tview.NewPages(),
		view:    NewViewState(),
	}
	if st := engine.Current(); st != nil {
		d.lastFilter = st.Filter
	}
	d.form = NewFilterForm(d.applyFilter, d.closeForm)
	d.setupUI()
	return d
}

// Run shows the dashboard until the user quits or ctx is cancelled.
func (d *Dashboard) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		d.app.Stop()
	}()
	go d.updateLoop(ctx)

	return d.app.Run()
}

func (d *Dashboard) setupUI() {
	d.graphView = tview.NewTextView().SetDynamicColors(true)
	d.graphView.SetBorder(true).SetTitle(" Active Connections ")

	d.summaryView = tview.NewTextView().SetDynamicColors(true)
	d.summaryView.SetBorder(true).SetTitle(" Summary ")

	d.statusView = tview.NewTextView().SetDynamicColors(true)

	titles := [tableCount]string{
		TableProcessHost: " [1] Connections by Process and Host ",
		TableHost:        " [2] Connections by Host ",
		TableProcess:     " [3] Connections by Process ",
	}
	for i := range d.tables {
		t := tview.NewTable().SetFixed(1, 0)
		t.SetBorder(true).SetTitle(titles[i])
		d.tables[i] = t
	}

	top := tview.NewFlex().
		AddItem(d.graphView, 0, 3, false).
		AddItem(d.summaryView, 0, 1, false)

	bottom := tview.NewFlex().
		AddItem(d.tables[TableHost], 0, 1, false).
		AddItem(d.tables[TableProcess], 0, 1, false)

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(top, 9, 0, false).
		AddItem(d.tables[TableProcessHost], 0, 1, false).
		AddItem(bottom, 0, 1, false).
		AddItem(d.statusView, 1, 0, false)

	d.pages.AddPage(pageMain, layout, true, true)
	d.pages.AddPage(pageFilter, d.form.Primitive(), true, false)

	d.app.SetRoot(d.pages, true).
		EnableMouse(true).
		SetInputCapture(d.handleKey).
		SetMouseCapture(d.handleMouse)

	d.render()
}

func (d *Dashboard) updateLoop(ctx context.Context) {
	ticker := time.NewTicker(d.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.app.QueueUpdateDraw(d.render)
		}
	}
}

func (d *Dashboard) editing() bool {
	page, _ := d.pages.GetFrontPage()
	return page == pageFilter
}

func (d *Dashboard) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if d.editing() {
		return event
	}

	switch event.Key() {
	case tcell.KeyUp:
		d.scroll(-1)
	case tcell.KeyDown:
		d.scroll(1)
	case tcell.KeyPgUp:
		d.scroll(-10)
	case tcell.KeyPgDn:
		d.scroll(10)
	case tcell.KeyHome:
		d.view.ScrollTop()
	case tcell.KeyEnd:
		d.view.ScrollBottom(d.rowCounts[d.view.Focus()], d.visibleRows(d.view.Focus()))
	case tcell.KeyCtrlC:
		d.quit()
		return nil
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q':
			d.quit()
			return nil
		case '1':
			d.view.SetFocus(TableProcessHost)
		case '2':
			d.view.SetFocus(TableHost)
		case '3':
			d.view.SetFocus(TableProcess)
		case 't':
			d.view.SetSort(SortTotal)
		case 'a':
			d.view.SetSort(SortActive)
		case 'm':
			d.view.SetSort(SortMax)
		case 'f':
			d.openForm()
			return nil
		case 'c':
			d.applyFilter(filter.Predicate{})
		case 'r':
			d.log.Info("statistics reset requested")
			d.engine.Reset()
		default:
			return event
		}
	default:
		return event
	}

	d.render()
	return nil
}

func (d *Dashboard) handleMouse(event *tcell.EventMouse, action tview.MouseAction) (*tcell.EventMouse, tview.MouseAction) {
	if d.editing() {
		return event, action
	}
	switch action {
	case tview.MouseScrollUp:
		d.scroll(-3)
	case tview.MouseScrollDown:
		d.scroll(3)
	default:
		return event, action
	}
	d.render()
	return nil, action
}

func (d *Dashboard) scroll(delta int) {
	t := d.view.Focus()
	d.view.Scroll(delta, d.rowCounts[t], d.visibleRows(t))
}

// visibleRows is the number of data rows the table showed on its last draw.
func (d *Dashboard) visibleRows(t Table) int {
	_, _, _, h := d.tables[t].GetInnerRect()
	if h <= 1 {
		return defaultVisible
	}
	return h - 1
}

func (d *Dashboard) openForm() {
	st := d.engine.Current()
	d.form.Show(st.Filter)
	d.pages.ShowPage(pageFilter)
	d.app.SetFocus(d.form.form)
}

func (d *Dashboard) closeForm() {
	d.pages.HidePage(pageFilter)
	d.app.SetFocus(d.pages)
}

func (d *Dashboard) applyFilter(p filter.Predicate) {
	d.closeForm()
	if p != d.lastFilter {
		d.log.Infof("filter set to %s", p)
		d.view.ResetOffsets()
		d.lastFilter = p
	}
	d.engine.SetFilter(p)
	d.render()
}

func (d *Dashboard) pollNotices() {
	now := d.now()
	for _, n := range d.engine.Notices().Drain() {
		n := n
		d.notice = &n
		d.noticeUntil = now.Add(noticeTTL)
	}
	if d.notice != nil && now.After(d.noticeUntil) {
		d.notice = nil
	}
}

func (d *Dashboard) render() {
	st := d.engine.Current()
	if st == nil {
		return
	}
	d.pollNotices()

	// the published rows are shared with other readers, sort copies
	rows := tracker.Rows{
		ProcessHosts: append([]tracker.ProcessHostRow(nil), st.Rows.ProcessHosts...),
		Hosts:        append([]tracker.HostRow(nil), st.Rows.Hosts...),
		Processes:    append([]tracker.ProcessRow(nil), st.Rows.Processes...),
	}
	sortProcessHostRows(rows.ProcessHosts, d.view.Sort(TableProcessHost))
	sortHostRows(rows.Hosts, d.view.Sort(TableHost))
	sortProcessRows(rows.Processes, d.view.Sort(TableProcess))

	ph := make([][]string, len(rows.ProcessHosts))
	for i, r := range rows.ProcessHosts {
		ph[i] = append([]string{r.Key.Name, r.Label(), strconv.Itoa(int(r.Key.Port))}, statCells(r.Stats.Active, r.Stats.Total, r.Stats.Max)...)
	}
	hosts := make([][]string, len(rows.Hosts))
	for i, r := range rows.Hosts {
		hosts[i] = append([]string{r.Label(), strconv.Itoa(int(r.Key.Port))}, statCells(r.Stats.Active, r.Stats.Total, r.Stats.Max)...)
	}
	procs := make([][]string, len(rows.Processes))
	for i, r := range rows.Processes {
		status := "[green]alive[-]"
		if !r.Alive {
			status = "[gray]exited[-]"
		}
		procs[i] = append([]string{strconv.Itoa(int(r.Key.PID)), r.Key.Name, status}, statCells(r.Stats.Active, r.Stats.Total, r.Stats.Max)...)
	}

	d.fillTable(TableProcessHost, []string{"Process", "Remote Host", "Port", "Active", "Total", "Max"}, ph)
	d.fillTable(TableHost, []string{"Remote Host", "Port", "Active", "Total", "Max"}, hosts)
	d.fillTable(TableProcess, []string{"PID", "Process", "Status", "Active", "Total", "Max"}, procs)

	_, _, w, h := d.graphView.GetInnerRect()
	if w <= 0 || h <= 0 {
		w, h = 80, 7
	}
	d.graphView.SetText(renderGraph(st.History, w, h))
	d.summaryView.SetText(summaryText(st))
	d.statusView.SetText(statusText(st, &d.view, d.notice))
}

func statCells(active, total, max int) []string {
	return []string{strconv.Itoa(active), strconv.Itoa(total), strconv.Itoa(max)}
}

func (d *Dashboard) fillTable(t Table, headers []string, rows [][]string) {
	table := d.tables[t]
	table.Clear()

	focused := d.view.Focus() == t
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetTextColor(tcell.ColorYellow).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false)
		if col >= len(headers)-3 {
			cell.SetAlign(tview.AlignRight)
			if focused && col == sortColumn(d.view.Sort(t), len(headers)) {
				cell.SetText(header + "▼")
			}
		} else {
			cell.SetExpansion(1)
		}
		table.SetCell(0, col, cell)
	}

	for i, row := range rows {
		for col, text := range row {
			cell := tview.NewTableCell(text)
			if col >= len(row)-3 {
				cell.SetAlign(tview.AlignRight)
			} else {
				cell.SetExpansion(1).SetMaxWidth(40)
			}
			table.SetCell(i+1, col, cell)
		}
	}

	if focused {
		table.SetBorderColor(tcell.ColorDarkCyan)
	} else {
		table.SetBorderColor(tcell.ColorWhite)
	}

	d.rowCounts[t] = len(rows)
	d.view.Clamp(t, len(rows), d.visibleRows(t))
	table.SetOffset(d.view.Offset(t), 0)
}

// sortColumn returns the index of k's column; Active, Total and Max are
// always the last three of n columns.
func sortColumn(k SortKey, n int) int {
	switch k {
	case SortActive:
		return n - 3
	case SortMax:
		return n - 1
	}
	return n - 2
}

func summaryText(st *tracker.State) string {
	g := st.Rows.Global
	var b strings.Builder
	fmt.Fprintf(&b, "[yellow]Active:[white] %d\n", g.Active)
	fmt.Fprintf(&b, "[yellow]Total:[white]  %d\n", g.Total)
	fmt.Fprintf(&b, "[yellow]Max:[white]    %d\n", g.Max)
	if !st.Filter.IsEmpty() {
		fmt.Fprintf(&b, "[gray]all: %d active, %d total[white]\n", st.Canonical.Active, st.Canonical.Total)
	}
	session := st.Session
	if len(session) > 8 {
		session = session[:8]
	}
	fmt.Fprintf(&b, "[gray]session %s, tick %d[white]", session, st.Tick)
	if st.Err != nil {
		b.WriteString("\n[red]snapshot unavailable[white]")
	}
	return b.String()
}

func statusText(st *tracker.State, view *ViewState, n *notice.Notice) string {
	var parts []string

	if st.Filter.IsEmpty() {
		parts = append(parts, "[yellow]No filters active[-]")
	} else {
		parts = append(parts, "[yellow]Filter: "+tview.Escape(st.Filter.String())+"[-]")
	}
	parts = append(parts, fmt.Sprintf("[darkcyan]Focus: %s (sort %s)[-]", view.Focus(), view.Sort(view.Focus())))

	if st.Faults > 0 {
		parts = append(parts, fmt.Sprintf("[red::b]! %d counting faults[-::-]", st.Faults))
	}
	if n != nil {
		color := "white"
		switch n.Severity {
		case notice.SeverityWarning:
			color = "orange"
		case notice.SeverityCritical:
			color = "red"
		}
		parts = append(parts, fmt.Sprintf("[%s]%s[-]", color, tview.Escape(n.Message)))
	} else {
		parts = append(parts, "[green]1-3[-] Table [green]↑↓[-] Scroll [green]f[-] Filter [green]c[-] Clear [green]r[-] Reset [green]t/a/m[-] Sort [green]q[-] Quit")
	}

	return strings.Join(parts, " | ")
}
