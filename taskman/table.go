package taskman

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

var tableColumns = []string{"Video", "Channel", "Title", "Status", "Progress", "Updated"}

var stepColors = map[Step]tcell.Color{
	StepQueued:      tcell.ColorGray,
	StepDownloading: tcell.ColorYellow,
	StepTrimming:    tcell.ColorYellow,
	StepUploading:   tcell.ColorAqua,
	StepDone:        tcell.ColorGreen,
	StepErrored:     tcell.ColorRed,
	StepSkipped:     tcell.ColorGray,
	StepCancelled:   tcell.ColorGray,
}

// TaskManager implements tview.TableContent so that a tview.Table can render
// it directly. Row 0 is the header; the newest task comes first.
var _ tview.TableContent = (*TaskManager)(nil)

func (t *TaskManager) GetCell(row, column int) *tview.TableCell {
	if column < 0 || column >= len(tableColumns) {
		return nil
	}
	if row == 0 {
		return tview.NewTableCell(tableColumns[column]).
			SetSelectable(false).
			SetAttributes(tcell.AttrBold)
	}

	all := t.tasks.Values()
	index := len(all) - row
	if index < 0 || index >= len(all) {
		return nil
	}
	tk := t.copy(all[index])

	var text string
	color := tcell.ColorWhite
	switch column {
	case 0:
		text = string(tk.Video.ID)
	case 1:
		text = fmt.Sprintf("%.16s", tk.Video.ChannelName)
	case 2:
		text = fmt.Sprintf("%.40s", tk.Video.Title)
	case 3:
		text = string(tk.Step)
		if c, ok := stepColors[tk.Step]; ok {
			color = c
		}
	case 4:
		text = tk.Progress
	case 5:
		text = tk.LastStepUpdate.Format(time.TimeOnly)
	}
	return tview.NewTableCell(tview.Escape(text)).SetTextColor(color)
}

func (t *TaskManager) GetRowCount() int {
	return t.tasks.Len() + 1
}

func (t *TaskManager) GetColumnCount() int {
	return len(tableColumns)
}

// The table is read-only; edits made through tview are ignored.
func (t *TaskManager) SetCell(row, column int, cell *tview.TableCell) {}
func (t *TaskManager) RemoveRow(row int)                              {}
func (t *TaskManager) RemoveColumn(column int)                        {}
func (t *TaskManager) InsertRow(row int)                              {}
func (t *TaskManager) InsertColumn(column int)                        {}
func (t *TaskManager) Clear()                                         {}
