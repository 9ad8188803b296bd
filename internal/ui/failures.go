package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"sbx/internal/domain"
	"sbx/internal/storage"
)

// maxLogLines caps the log lines shown for one failure
const maxLogLines = 20

// FailureViewer displays test failures in an interactive TUI
type FailureViewer struct {
	storage storage.Storage
}

// NewFailureViewer creates a new FailureViewer. Resolved toggles are saved
// back through st.
func NewFailureViewer(st storage.Storage) *FailureViewer {
	return &FailureViewer{storage: st}
}

// View displays the failures of record in an interactive TUI
func (fv *FailureViewer) View(record *domain.RunRecord) error {
	if len(record.Details) == 0 {
		color.Green("✓ No test failures found!")
		return nil
	}

	app := tview.NewApplication()

	list := tview.NewList().
		ShowSecondaryText(false).
		SetHighlightFullLine(true)

	for i := range record.Details {
		list.AddItem(listItemText(record.Details[i], i), "", 0, nil)
	}

	list.SetMainTextColor(tview.Styles.PrimaryTextColor).
		SetSelectedTextColor(tcell.ColorWhite).
		SetSelectedBackgroundColor(tcell.ColorDarkCyan).
		SetSecondaryTextColor(tview.Styles.SecondaryTextColor)

	statsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetWordWrap(false)

	detailsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetWordWrap(true)

	detailsContainer := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(detailsView, 0, 1, false).
		AddItem(tview.NewBox(), 2, 0, false)

	rightSide := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(statsView, 3, 0, false).
		AddItem(detailsContainer, 0, 1, false)

	// list on the left (1/3), details on the right (2/3)
	flex := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(list, 0, 1, true).
		AddItem(rightSide, 0, 2, false)

	headerView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true)

	footerView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true)

	updateHeader := func() {
		headerView.SetText(fmt.Sprintf(
			" Test Failures (%d total, %d unresolved) | Use ↑↓ to navigate, [yellow]R[white] to mark resolved, → to view details, ← to go back, Ctrl+C to exit ",
			len(record.Details), Unresolved(record)))
	}
	updateHeader()

	updateDetails := func() {
		index := list.GetCurrentItem()
		if index >= 0 && index < len(record.Details) {
			failure := record.Details[index]
			statsView.SetText(FormatFailureStats(failure))
			detailsView.SetText(FormatFailureDetails(failure))
		}
	}

	list.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEnter, tcell.KeyRight:
			app.SetFocus(detailsView)
			return nil
		case tcell.KeyCtrlC:
			app.Stop()
			return nil
		case tcell.KeyRune:
			if event.Rune() == 'r' || event.Rune() == 'R' {
				index := list.GetCurrentItem()
				if index >= 0 && index < len(record.Details) {
					ToggleResolved(record, index)
					list.SetItemText(index, listItemText(record.Details[index], index), "")
					updateHeader()
					updateDetails()
					if err := fv.storage.Save(record); err != nil {
						footerView.SetText(fmt.Sprintf("[red]failed to save: %v[white]", err))
					} else {
						footerView.SetText("")
					}
				}
				return nil
			}
		}
		return event
	})

	detailsView.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyLeft, tcell.KeyEsc:
			app.SetFocus(list)
			return nil
		case tcell.KeyCtrlC:
			app.Stop()
			return nil
		}
		return event
	})

	list.SetChangedFunc(func(int, string, string, rune) {
		updateDetails()
	})
	updateDetails()

	mainLayout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(headerView, 1, 0, false).
		AddItem(tview.NewBox(), 1, 0, false).
		AddItem(flex, 0, 1, true).
		AddItem(footerView, 1, 0, false)

	if err := app.SetRoot(mainLayout, true).SetFocus(list).Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	return nil
}

// ToggleResolved flips the resolved mark of the failure at index
func ToggleResolved(record *domain.RunRecord, index int) {
	record.Details[index].Resolved = !record.Details[index].Resolved
}

// Unresolved counts the failures not yet marked resolved
func Unresolved(record *domain.RunRecord) int {
	count := 0
	for _, failure := range record.Details {
		if !failure.Resolved {
			count++
		}
	}
	return count
}

func listItemText(failure domain.Failure, index int) string {
	name := failure.TestName
	if name == "" {
		name = fmt.Sprintf("Test %d", index+1)
	}
	if failure.Resolved {
		return fmt.Sprintf("[gray]✓ [yellow]%d.[gray] %s[white]", index+1, name)
	}
	return fmt.Sprintf("[yellow]%d.[white] %s", index+1, name)
}

// FormatFailureDetails formats a failure using tview color tags
func FormatFailureDetails(failure domain.Failure) string {
	var builder strings.Builder

	fmt.Fprintf(&builder, "[red]✗ Test: %s[white]\n\n", failure.TestName)
	fmt.Fprintf(&builder, "[cyan]Suite: %s[white]\n", failure.Path())
	fmt.Fprintf(&builder, "[cyan]ID: %s[white]\n\n", failure.ID)

	if len(failure.Log) > 0 {
		builder.WriteString("[yellow]Log:[white]\n")
		for i, line := range failure.Log {
			if i == maxLogLines {
				fmt.Fprintf(&builder, "  [gray]... and %d more lines[white]\n", len(failure.Log)-maxLogLines)
				break
			}
			fmt.Fprintf(&builder, "  %s\n", tview.Escape(line))
		}
	}

	return builder.String()
}

// FormatFailureStats formats the header line of a failure
func FormatFailureStats(failure domain.Failure) string {
	path := failure.Path()
	if path == "" {
		path = "Unknown suite"
	}
	return fmt.Sprintf("[cyan]suite:[white] [yellow]%s[white]::[yellow]%s[white]\n", path, failure.TestName)
}
