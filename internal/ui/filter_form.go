package ui

import (
	"strconv"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/nozo-moto/tcpcount/internal/filter"
)

const (
	labelPID         = "PID"
	labelProcessName = "Process Name"
	labelRemoteHost  = "Remote Host"
	labelRemotePort  = "Remote Port"
)

// FilterForm edits a filter.Predicate. Tab and Shift-Tab move between
// fields, Enter applies and Esc cancels. An invalid pid or port keeps the
// form open with the error shown under the fields.
type FilterForm struct {
	form   *tview.Form
	errors *tview.TextView
	layout *tview.Flex

	onApply  func(filter.Predicate)
	onCancel func()
}

func NewFilterForm(onApply func(filter.Predicate), onCancel func()) *FilterForm {
	f := &FilterForm{
		form:     tview.NewForm(),
		errors:   tview.NewTextView().SetDynamicColors(true),
		onApply:  onApply,
		onCancel: onCancel,
	}

	f.form.
		AddInputField(labelPID, "", 10, tview.InputFieldInteger, nil).
		AddInputField(labelProcessName, "", 30, nil, nil).
		AddInputField(labelRemoteHost, "", 30, nil, nil).
		AddInputField(labelRemotePort, "", 6, tview.InputFieldInteger, nil)
	f.form.SetItemPadding(1)
	f.form.SetInputCapture(f.handleKey)

	body := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(f.form, 0, 1, true).
		AddItem(f.errors, 1, 0, false).
		AddItem(tview.NewTextView().
			SetDynamicColors(true).
			SetText("[green]Tab[white]: Next  [green]Enter[white]: Apply  [green]Esc[white]: Cancel"), 1, 0, false)
	body.SetBorder(true).
		SetTitle(" Filter Connections ").
		SetTitleAlign(tview.AlignCenter)

	// centered 50x15 box
	f.layout = tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(body, 15, 0, true).
			AddItem(nil, 0, 1, false), 50, 0, true).
		AddItem(nil, 0, 1, false)

	return f
}

func (f *FilterForm) Primitive() tview.Primitive { return f.layout }

// Show fills the fields from p and clears any previous error.
func (f *FilterForm) Show(p filter.Predicate) {
	set := func(label, value string) {
		f.field(label).SetText(value)
	}
	set(labelPID, "")
	if p.HasPID {
		set(labelPID, strconv.Itoa(int(p.PID)))
	}
	set(labelProcessName, p.ProcessName)
	set(labelRemoteHost, p.Host)
	set(labelRemotePort, "")
	if p.HasPort {
		set(labelRemotePort, strconv.Itoa(int(p.Port)))
	}
	f.errors.SetText("")
	f.form.SetFocus(0)
}

func (f *FilterForm) field(label string) *tview.InputField {
	return f.form.GetFormItemByLabel(label).(*tview.InputField)
}

// Values returns the current text of the four fields.
func (f *FilterForm) Values() (pid, name, host, port string) {
	return f.field(labelPID).GetText(),
		f.field(labelProcessName).GetText(),
		f.field(labelRemoteHost).GetText(),
		f.field(labelRemotePort).GetText()
}

// Error returns the validation message on display, "" when none.
func (f *FilterForm) Error() string {
	return f.errors.GetText(true)
}

func (f *FilterForm) submit() {
	p, err := filter.Parse(f.Values())
	if err != nil {
		f.errors.SetText("[red]" + tview.Escape(err.Error()))
		return
	}
	f.errors.SetText("")
	f.onApply(p)
}

func (f *FilterForm) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyEnter:
		f.submit()
		return nil
	case tcell.KeyEsc:
		f.onCancel()
		return nil
	}
	return event
}
