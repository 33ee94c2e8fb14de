package dispatcher

import (
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/rivo/tview"
)

// progressColor blends red (nothing done) to green (all done) for the
// dashboard header bar, giving a single-glance completion indicator
// instead of a numeric-only readout.
func progressColor(fraction float64) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	start, _ := colorful.Hex("#c0392b")
	end, _ := colorful.Hex("#27ae60")
	return start.BlendLuv(end, fraction).Hex()
}

// Dashboard is an optional live status view of in-flight Build Units,
// ported from the teacher's NcursesUI (build/ui_ncurses.go) and
// generalized from "ports building" to "jobs progressing through the
// dispatcher", per spec.md §9's note on an optional live status view
// for C7/C10.
type Dashboard struct {
	app          *tview.Application
	headerText   *tview.TextView
	jobsText     *tview.TextView
	eventsText   *tview.TextView
	layout       *tview.Flex
	mu           sync.Mutex
	eventLines   []string
	maxEvents    int
	stopped      bool
	onInterrupt  func()
}

// NewDashboard constructs a Dashboard, not yet started.
func NewDashboard() *Dashboard {
	return &Dashboard{maxEvents: 200}
}

// SetInterruptHandler registers a callback invoked when the operator
// presses Ctrl+C or 'q' inside the dashboard.
func (d *Dashboard) SetInterruptHandler(handler func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onInterrupt = handler
}

// Start builds the layout and runs the tview event loop in the
// background. Safe to call once.
func (d *Dashboard) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.app = tview.NewApplication()

	d.headerText = tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignLeft)
	d.headerText.SetBorder(true).SetTitle(" easybuild dispatcher ").SetTitleAlign(tview.AlignLeft)
	d.headerText.SetText("[yellow]Waiting for jobs...[white]")

	d.jobsText = tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignLeft)
	d.jobsText.SetBorder(true).SetTitle(" Jobs ").SetTitleAlign(tview.AlignLeft)

	d.eventsText = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() { d.app.Draw() })
	d.eventsText.SetBorder(true).SetTitle(" Events ").SetTitleAlign(tview.AlignLeft)

	d.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.headerText, 3, 0, false).
		AddItem(d.jobsText, 0, 1, false).
		AddItem(d.eventsText, 0, 2, false)

	d.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC || (event.Key() == tcell.KeyRune && (event.Rune() == 'q' || event.Rune() == 'Q')) {
			d.app.Stop()
			d.mu.Lock()
			handler := d.onInterrupt
			d.mu.Unlock()
			if handler != nil {
				go handler()
			}
			return nil
		}
		return event
	})

	go func() {
		_ = d.app.SetRoot(d.layout, true).EnableMouse(true).Run()
	}()

	time.Sleep(100 * time.Millisecond)
	return nil
}

// Stop shuts down the dashboard.
func (d *Dashboard) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.app != nil {
		d.app.Stop()
	}
}

// UpdateJobs redraws the job table from the current job slice.
func (d *Dashboard) UpdateJobs(jobs []*Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.app == nil || d.stopped {
		return
	}

	var success, failed, running, pending int
	for _, j := range jobs {
		switch j.Status {
		case JobSuccess:
			success++
		case JobFailed:
			failed++
		case JobRunning:
			running++
		default:
			pending++
		}
	}

	fraction := 0.0
	if len(jobs) > 0 {
		fraction = float64(success+failed) / float64(len(jobs))
	}
	header := fmt.Sprintf("[%s]Jobs:[white] %d | [green]done:[white] %d | [red]failed:[white] %d | [cyan]running:[white] %d",
		progressColor(fraction), len(jobs), success, failed, running)

	var body string
	for _, j := range jobs {
		body += fmt.Sprintf("%-8s %s\n", j.Status, j.ModuleID)
	}

	d.app.QueueUpdateDraw(func() {
		d.headerText.SetText(header)
		d.jobsText.SetText(body)
	})
}

// LogEvent appends one timestamped event line, trimming to maxEvents.
func (d *Dashboard) LogEvent(message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.app == nil || d.stopped {
		return
	}

	line := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), message)
	d.eventLines = append(d.eventLines, line)
	if len(d.eventLines) > d.maxEvents {
		d.eventLines = d.eventLines[1:]
	}

	text := ""
	for _, l := range d.eventLines {
		text += l + "\n"
	}
	d.app.QueueUpdateDraw(func() {
		d.eventsText.SetText(text)
		d.eventsText.ScrollToEnd()
	})
}
