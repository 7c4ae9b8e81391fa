package ui

import (
	"sort"

	"github.com/nozo-moto/tcpcount/internal/tracker"
	"github.com/nozo-moto/tcpcount/pkg/types"
)

func statValue(s types.GroupStats, k SortKey) int {
	switch k {
	case SortActive:
		return s.Active
	case SortMax:
		return s.Max
	}
	return s.Total
}

// sortHostRows orders rows by k descending. Ties fall back to the group key
// so the order does not jump between refreshes.
func sortHostRows(rows []tracker.HostRow, k SortKey) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := statValue(rows[i].Stats, k), statValue(rows[j].Stats, k)
		if a != b {
			return a > b
		}
		if rows[i].Label() != rows[j].Label() {
			return rows[i].Label() < rows[j].Label()
		}
		if rows[i].Key.Addr != rows[j].Key.Addr {
			return rows[i].Key.Addr < rows[j].Key.Addr
		}
		return rows[i].Key.Port < rows[j].Key.Port
	})
}

func sortProcessRows(rows []tracker.ProcessRow, k SortKey) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := statValue(rows[i].Stats, k), statValue(rows[j].Stats, k)
		if a != b {
			return a > b
		}
		if rows[i].Key.PID != rows[j].Key.PID {
			return rows[i].Key.PID < rows[j].Key.PID
		}
		return rows[i].Key.Name < rows[j].Key.Name
	})
}

func sortProcessHostRows(rows []tracker.ProcessHostRow, k SortKey) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := statValue(rows[i].Stats, k), statValue(rows[j].Stats, k)
		if a != b {
			return a > b
		}
		if rows[i].Key.Name != rows[j].Key.Name {
			return rows[i].Key.Name < rows[j].Key.Name
		}
		if rows[i].Label() != rows[j].Label() {
			return rows[i].Label() < rows[j].Label()
		}
		if rows[i].Key.Addr != rows[j].Key.Addr {
			return rows[i].Key.Addr < rows[j].Key.Addr
		}
		return rows[i].Key.Port < rows[j].Key.Port
	})
}
