package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/jesseduffield/gocui"
	"github.com/robfig/cron/v3"

	"github.com/Joseda-hg/lazycal/internal/calendar"
	"github.com/Joseda-hg/lazycal/internal/logger"
	"github.com/Joseda-hg/lazycal/internal/model"
	"github.com/Joseda-hg/lazycal/internal/planner"
)

const (
	viewHeader   = "header"
	viewFooter   = "footer"
	viewMonth    = "month"
	viewDay      = "day"
	viewUpcoming = "upcoming"
	viewDetail   = "detail"
	viewHistory  = "history"
	viewSearch   = "search"
	viewForm     = "form"
	viewHelp     = "help"
)

// HistorySource lists the audit trail of one event.
type HistorySource interface {
	ListHistory(ctx context.Context, eventID int64) ([]model.HistoryEntry, error)
}

// Searcher runs a text search over all stored events.
type Searcher interface {
	ListEvents(ctx context.Context, filter model.Filter) ([]model.Event, error)
}

type UI struct {
	planner *planner.Planner
	history HistorySource
	search  Searcher
	log     logger.Logger
	gui     *gocui.Gui

	now         time.Time
	year        int
	month       time.Month
	selectedDay time.Time
	monthView   planner.MonthView

	dayEvents     []model.Event
	upcomingRows  []listRow
	upcomingIndex []int
	historyItems  []model.HistoryEntry
	query         string

	selectedEvent    int
	selectedUpcoming int
	selectedHistory  int
	focus            string
	lastList         string

	form         *formState
	formEditor   *formEditor
	searchActive bool
	helpActive   bool
	status       string
}

type formState struct {
	eventID int64
	fields  []formField
	index   int
}

type formEditor struct {
	ui *UI
}

type Option func(*UI)

func WithHistory(h HistorySource) Option {
	return func(u *UI) { u.history = h }
}

func WithSearch(s Searcher) Option {
	return func(u *UI) { u.search = s }
}

func WithLogger(l logger.Logger) Option {
	return func(u *UI) {
		u.log = logger.OrNop(l).Named("tui")
	}
}

func newUI(p *planner.Planner, opts ...Option) *UI {
	u := &UI{
		planner:  p,
		log:      logger.Nop(),
		focus:    viewMonth,
		lastList: viewDay,
	}
	for _, opt := range opts {
		opt(u)
	}
	u.formEditor = &formEditor{ui: u}
	u.selectDay(p.Now())
	return u
}

func Run(p *planner.Planner, opts ...Option) error {
	gui, err := gocui.NewGui(gocui.NewGuiOpts{OutputMode: gocui.OutputNormal})
	if err != nil {
		return err
	}
	defer gui.Close()

	ui := newUI(p, opts...)
	ui.gui = gui
	gui.Mouse = true

	gui.SetManagerFunc(ui.layout)
	if err := ui.bindKeys(gui); err != nil {
		return err
	}
	if err := ui.loadEvents(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Changes made elsewhere (the web server, an import) reach the panes
	// through the store's change feed.
	sub := p.Subscribe(ctx, planner.UpcomingQuery(time.Time{}))
	defer sub.Close()
	go func() {
		for range sub.Updates() {
			gui.Update(func(*gocui.Gui) error { return ui.refresh() })
		}
	}()

	scheduler := cron.New(cron.WithLocation(p.Calendar().Location()))
	if _, err := scheduler.AddFunc("@midnight", func() {
		gui.Update(func(*gocui.Gui) error { return ui.rollover() })
	}); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	if err := gui.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}

	return nil
}

func (u *UI) bindKeys(gui *gocui.Gui) error {
	if err := gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, u.quit); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'q', gocui.ModNone, u.quit); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'r', gocui.ModNone, u.reload); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'g', gocui.ModNone, u.clearSearch); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'a', gocui.ModNone, u.addEvent); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'e', gocui.ModNone, u.editEvent); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'd', gocui.ModNone, u.deleteEvent); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 't', gocui.ModNone, u.jumpToday); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '[', gocui.ModNone, u.prevMonth); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", ']', gocui.ModNone, u.nextMonth); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '/', gocui.ModNone, u.startSearch); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '?', gocui.ModNone, u.toggleHelp); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", gocui.KeyTab, gocui.ModNone, u.switchFocus); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '1', gocui.ModNone, u.focusMonth); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '2', gocui.ModNone, u.focusDay); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '3', gocui.ModNone, u.focusUpcoming); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '4', gocui.ModNone, u.focusDetail); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '5', gocui.ModNone, u.focusHistory); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewMonth, 'h', gocui.ModNone, u.prevDay); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewMonth, gocui.KeyArrowLeft, gocui.ModNone, u.prevDay); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewMonth, 'l', gocui.ModNone, u.nextDay); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewMonth, gocui.KeyArrowRight, gocui.ModNone, u.nextDay); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewMonth, gocui.KeyEnter, gocui.ModNone, u.focusDay); err != nil {
		return err
	}
	for _, name := range []string{viewMonth, viewDay, viewUpcoming, viewHistory} {
		if err := gui.SetKeybinding(name, gocui.KeyArrowDown, gocui.ModNone, u.moveDown); err != nil {
			return err
		}
		if err := gui.SetKeybinding(name, 'j', gocui.ModNone, u.moveDown); err != nil {
			return err
		}
		if err := gui.SetKeybinding(name, gocui.KeyArrowUp, gocui.ModNone, u.moveUp); err != nil {
			return err
		}
		if err := gui.SetKeybinding(name, 'k', gocui.ModNone, u.moveUp); err != nil {
			return err
		}
	}
	if err := gui.SetKeybinding(viewUpcoming, gocui.KeyEnter, gocui.ModNone, u.openSelectedDay); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewSearch, gocui.KeyEnter, gocui.ModNone, u.submitSearch); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewSearch, gocui.KeyEsc, gocui.ModNone, u.cancelSearch); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyEnter, gocui.ModNone, u.submitFormNow); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyCtrlJ, gocui.ModNone, u.submitFormNow); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyTab, gocui.ModNone, u.nextFormField); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyBacktab, gocui.ModNone, u.prevFormField); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyArrowDown, gocui.ModNone, u.nextFormField); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyArrowUp, gocui.ModNone, u.prevFormField); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyEsc, gocui.ModNone, u.cancelForm); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewHelp, gocui.KeyEsc, gocui.ModNone, u.closeHelp); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewHelp, 'q', gocui.ModNone, u.closeHelp); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewHelp, '?', gocui.ModNone, u.closeHelp); err != nil {
		return err
	}
	for _, name := range []string{viewMonth, viewDay, viewUpcoming, viewHistory} {
		name := name
		if err := gui.SetViewClickBinding(&gocui.ViewMouseBinding{ViewName: name, Key: gocui.MouseLeft, Handler: func(opts gocui.ViewMouseBindingOpts) error {
			return u.onListClick(gui, name, opts)
		}}); err != nil {
			return err
		}
	}
	if err := u.bindMouseScroll(gui); err != nil {
		return err
	}
	return nil
}

func (u *UI) layout(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	if maxX <= 0 || maxY <= 0 {
		return nil
	}

	headerView, err := gui.SetView(viewHeader, 0, 0, maxX-1, 0, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	headerView.Frame = false
	headerView.Wrap = true
	headerView.FgColor = gocui.ColorDefault
	u.renderHeader(headerView)

	footerY1 := maxY - 2
	if footerY1 < 1 {
		footerY1 = 1
	}
	footerY0 := footerY1 - 2
	if footerY0 < 1 {
		footerY0 = 1
	}
	footerView, err := gui.SetView(viewFooter, 0, footerY0, maxX-1, footerY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	footerView.Frame = false
	footerView.Wrap = true
	footerView.FgColor = gocui.ColorDefault | gocui.AttrDim
	footerView.BgColor = gocui.ColorDefault
	u.renderFooter(footerView)

	bodyTop := 1
	bodyBottom := footerY0 - 1
	if bodyBottom < bodyTop {
		return nil
	}

	layout := computeLayout(maxX, bodyBottom-bodyTop+1)
	leftX0 := 0
	leftX1 := leftX0 + layout.leftWidth - 1
	rightX0 := leftX1 + 1
	if rightX0 >= maxX {
		rightX0 = leftX1
	}
	rightX1 := maxX - 1

	monthY0 := bodyTop
	monthY1 := monthY0 + layout.monthHeight - 1
	dayY0 := monthY1 + 1
	dayY1 := bodyBottom

	upcomingY0 := bodyTop
	upcomingY1 := upcomingY0 + layout.upcomingHeight - 1
	detailY0 := upcomingY1 + 1
	detailY1 := detailY0 + layout.detailHeight - 1
	historyY0 := detailY1 + 1
	historyY1 := bodyBottom

	monthView, err := gui.SetView(viewMonth, leftX0, monthY0, leftX1, monthY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		monthView.TitleColor = gocui.ColorYellow
	}
	monthView.Title = fmt.Sprintf("1 %s %d", u.month, u.year)
	applyViewStyle(monthView, u.focus == viewMonth, false)
	u.renderMonth(monthView)

	dayView, err := gui.SetView(viewDay, leftX0, dayY0, leftX1, dayY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		dayView.TitleColor = gocui.ColorGreen
	}
	dayView.Title = "2 " + formatDayHeader(u.selectedDay)
	applyViewStyle(dayView, u.focus == viewDay, true)
	u.renderDay(dayView, u.focus == viewDay)

	upcomingView, err := gui.SetView(viewUpcoming, rightX0, upcomingY0, rightX1, upcomingY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		upcomingView.TitleColor = gocui.ColorRed
	}
	upcomingView.Title = fmt.Sprintf("3 Next %d days", u.planner.Horizon())
	if u.query != "" {
		upcomingView.Title = "3 Search: " + u.query
	}
	applyViewStyle(upcomingView, u.focus == viewUpcoming, true)
	u.renderUpcoming(upcomingView, u.focus == viewUpcoming)

	detailView, err := gui.SetView(viewDetail, rightX0, detailY0, rightX1, detailY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		detailView.Title = "4 Detail"
		detailView.Wrap = true
	}
	applyViewStyle(detailView, u.focus == viewDetail, false)
	u.renderDetail(detailView)

	historyView, err := gui.SetView(viewHistory, rightX0, historyY0, rightX1, historyY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		historyView.Title = "5 History"
	}
	applyViewStyle(historyView, u.focus == viewHistory, true)
	u.renderHistory(historyView, u.focus == viewHistory)

	_, _ = gui.SetViewOnTop(viewHeader)
	_, _ = gui.SetViewOnTop(viewFooter)

	if u.searchActive {
		if err := u.showSearch(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewSearch)
	}

	if u.form != nil {
		if err := u.showForm(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewForm)
	}

	if u.helpActive {
		if err := u.showHelp(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewHelp)
	}

	if gui.CurrentView() == nil {
		_, _ = gui.SetCurrentView(u.focus)
	}

	gui.Cursor = u.searchActive || u.form != nil

	return nil
}

type layout struct {
	leftWidth      int
	monthHeight    int
	dayHeight      int
	upcomingHeight int
	detailHeight   int
	historyHeight  int
}

// monthPaneHeight fits the weekday row, six weeks, the legend and a frame.
const monthPaneHeight = 11

func computeLayout(width, height int) layout {
	safeWidth := max(width-2, 20)
	safeHeight := max(height, 8)

	leftWidth := safeWidth / 3
	if leftWidth < 32 {
		leftWidth = 32
	}
	if leftWidth > safeWidth-18 {
		leftWidth = safeWidth / 2
	}

	monthHeight := min(monthPaneHeight, max(safeHeight-4, 4))
	dayHeight := max(safeHeight-monthHeight, 4)

	upcomingHeight := int(float64(safeHeight) * 0.45)
	if upcomingHeight < 4 {
		upcomingHeight = 4
	}
	detailHeight := int(float64(safeHeight) * 0.3)
	if detailHeight < 4 {
		detailHeight = 4
	}
	historyHeight := safeHeight - upcomingHeight - detailHeight
	if historyHeight < 3 {
		historyHeight = 3
		detailHeight = max(safeHeight-upcomingHeight-historyHeight, 3)
	}

	return layout{
		leftWidth:      leftWidth,
		monthHeight:    monthHeight,
		dayHeight:      dayHeight,
		upcomingHeight: upcomingHeight,
		detailHeight:   detailHeight,
		historyHeight:  historyHeight,
	}
}

func (u *UI) selectDay(t time.Time) {
	cal := u.planner.Calendar()
	day := cal.StartOfDay(t)
	if !cal.SameDay(day, u.selectedDay) {
		u.selectedEvent = 0
	}
	u.selectedDay = day
	u.year = day.Year()
	u.month = day.Month()
}

func (u *UI) loadEvents() error {
	ctx := context.Background()
	u.now = u.planner.Now()

	view, err := u.planner.Month(ctx, u.year, u.month, u.now)
	if err != nil {
		return err
	}
	u.monthView = view

	dayEvents, err := u.planner.DayEvents(ctx, u.selectedDay)
	if err != nil {
		return err
	}
	u.dayEvents = dayEvents

	var buckets []calendar.DayBucket
	if u.query != "" && u.search != nil {
		found, err := u.search.ListEvents(ctx, model.Filter{Query: u.query})
		if err != nil {
			return err
		}
		buckets = u.planner.Calendar().GroupByDay(found)
	} else {
		buckets, err = u.planner.UpcomingByDay(ctx, u.now)
		if err != nil {
			return err
		}
	}
	u.upcomingRows = buildUpcomingRows(buckets)
	u.upcomingIndex = eventRowIndexes(u.upcomingRows)

	if u.selectedEvent >= len(u.dayEvents) {
		u.selectedEvent = max(len(u.dayEvents)-1, 0)
	}
	if u.selectedUpcoming >= len(u.upcomingIndex) {
		u.selectedUpcoming = max(len(u.upcomingIndex)-1, 0)
	}

	return u.loadHistory()
}

func (u *UI) loadHistory() error {
	selected := u.selectedItem()
	if selected == nil || u.history == nil {
		u.historyItems = nil
		return nil
	}

	entries, err := u.history.ListHistory(context.Background(), selected.ID)
	if err != nil {
		return err
	}
	u.historyItems = entries
	if u.selectedHistory >= len(u.historyItems) {
		u.selectedHistory = max(len(u.historyItems)-1, 0)
	}
	return nil
}

// refresh reloads every pane and reports failures on the status line so a
// background update never ends the main loop.
func (u *UI) refresh() error {
	if err := u.loadEvents(); err != nil {
		u.log.Warn(context.Background(), "refresh failed", logger.Error(err))
		u.status = err.Error()
	}
	return nil
}

// rollover runs at local midnight. A selection that sat on the old current
// day follows it to the new one.
func (u *UI) rollover() error {
	previous := u.now
	now := u.planner.Now()
	if u.planner.Calendar().SameDay(u.selectedDay, previous) {
		u.selectDay(now)
	}
	return u.refresh()
}

func (u *UI) renderHeader(view *gocui.View) {
	view.Clear()
	query := u.query
	if query == "" {
		query = "type / to search"
	}
	fmt.Fprintf(view, "lazycal | %s | Today: %s | Zone: %s | Search: %s",
		formatDayHeader(u.selectedDay),
		formatDayHeader(u.planner.Calendar().StartOfDay(u.now)),
		u.planner.Calendar().Location(),
		query,
	)
}

func (u *UI) renderFooter(view *gocui.View) {
	view.Clear()
	view.SetOrigin(0, 0)
	view.SetCursor(0, 0)

	fmt.Fprintln(view, "a add | e edit | d delete | h/l day | j/k week/select | [ ] month | t today | enter open")
	fmt.Fprintln(view, "/ search | g clear | r reload | tab cycle | 1-5 panes | ? help | q quit")
	if u.status != "" {
		fmt.Fprint(view, u.status)
	}
}

func (u *UI) renderMonth(view *gocui.View) {
	view.Clear()
	lines := monthLines(u.planner.Calendar(), u.monthView, u.planner.WeekStart(), u.selectedDay, u.now)
	fmt.Fprint(view, strings.Join(lines, "\n"))
}

func (u *UI) renderDay(view *gocui.View, focused bool) {
	view.Clear()
	if len(u.dayEvents) == 0 {
		fmt.Fprint(view, "  No events")
		return
	}
	cal := u.planner.Calendar()
	for i, event := range u.dayEvents {
		prefix := " "
		if i == u.selectedEvent {
			if focused {
				prefix = ">"
			} else {
				prefix = "*"
			}
		}
		fmt.Fprintf(view, "%s %s\n", prefix, formatEventSummary(cal, event, u.now))
	}
	if focused {
		view.SetCursor(0, min(u.selectedEvent, len(u.dayEvents)-1))
	}
}

func (u *UI) renderUpcoming(view *gocui.View, focused bool) {
	view.Clear()
	if len(u.upcomingRows) == 0 {
		if u.query != "" {
			fmt.Fprint(view, "  No matches")
		} else {
			fmt.Fprint(view, "  Nothing coming up")
		}
		return
	}
	cal := u.planner.Calendar()
	selectedRow := -1
	if u.selectedUpcoming < len(u.upcomingIndex) {
		selectedRow = u.upcomingIndex[u.selectedUpcoming]
	}
	for i, row := range u.upcomingRows {
		if row.event == nil {
			fmt.Fprintln(view, row.header)
			continue
		}
		prefix := " "
		if i == selectedRow {
			if focused {
				prefix = ">"
			} else {
				prefix = "*"
			}
		}
		fmt.Fprintf(view, "%s   %s\n", prefix, formatEventSummary(cal, *row.event, u.now))
	}
	if focused && selectedRow >= 0 {
		view.SetCursor(0, selectedRow)
	}
}

func (u *UI) renderDetail(view *gocui.View) {
	view.Clear()
	selected := u.selectedItem()
	if selected == nil {
		fmt.Fprint(view, "No event selected")
		return
	}

	cal := u.planner.Calendar()
	lines := []string{}
	if u.focus == viewHistory {
		if entry := u.selectedHistoryEntry(); entry != nil {
			lines = append(lines,
				"History Detail",
				fmt.Sprintf("When: %s", entry.CreatedAt.In(cal.Location()).Format("2006-01-02 15:04:05")),
				fmt.Sprintf("Type: %s", entry.EventType),
				fmt.Sprintf("Details: %s", entry.Details),
				"",
				"Event",
			)
		} else {
			lines = append(lines, "No history selected", "", "Event")
		}
	}

	local := selected.Timestamp.In(cal.Location())
	lines = append(lines,
		selected.Title,
		fmt.Sprintf("When: %s %s (%s)", formatDayHeader(local), timeLabel(*selected, cal.Location()), relativeLabel(cal, selected.Timestamp, u.now)),
		fmt.Sprintf("Status: %s", cal.ClassifyEvent(*selected, u.now)),
		"",
		selected.Description,
	)

	fmt.Fprint(view, strings.Join(lines, "\n"))
}

func (u *UI) renderHistory(view *gocui.View, focused bool) {
	view.Clear()
	loc := u.planner.Calendar().Location()
	for index, entry := range u.historyItems {
		prefix := " "
		if index == u.selectedHistory {
			if focused {
				prefix = ">"
			} else {
				prefix = "*"
			}
		}
		fmt.Fprintf(view, "%s %s | %s | %s\n", prefix, entry.CreatedAt.In(loc).Format("2006-01-02 15:04"), entry.EventType, entry.Details)
	}
	if focused {
		view.SetCursor(0, min(u.selectedHistory, len(u.historyItems)-1))
	}
}

func (u *UI) selectedHistoryEntry() *model.HistoryEntry {
	if u.selectedHistory >= 0 && u.selectedHistory < len(u.historyItems) {
		return &u.historyItems[u.selectedHistory]
	}
	return nil
}

// selectedItem is the event under the cursor of the day or upcoming pane,
// whichever list was used last.
func (u *UI) selectedItem() *model.Event {
	list := u.focus
	if list != viewDay && list != viewUpcoming {
		list = u.lastList
	}
	switch list {
	case viewUpcoming:
		if u.selectedUpcoming >= 0 && u.selectedUpcoming < len(u.upcomingIndex) {
			return u.upcomingRows[u.upcomingIndex[u.selectedUpcoming]].event
		}
	default:
		if u.selectedEvent >= 0 && u.selectedEvent < len(u.dayEvents) {
			return &u.dayEvents[u.selectedEvent]
		}
	}
	return nil
}

func (u *UI) onListClick(gui *gocui.Gui, viewName string, opts gocui.ViewMouseBindingOpts) error {
	if u.inputActive() {
		return nil
	}
	if _, err := gui.View(viewName); err != nil {
		return nil
	}

	// opts carries content coordinates with the view origin applied.
	row := max(opts.Y, 0)

	switch viewName {
	case viewMonth:
		if u.selectCell(row, opts.X/4) {
			if err := u.loadEvents(); err != nil {
				return err
			}
		}
		return u.setFocus(gui, viewMonth)
	case viewDay:
		u.selectedEvent = max(min(row, len(u.dayEvents)-1), 0)
		return u.setFocus(gui, viewDay)
	case viewUpcoming:
		for i, index := range u.upcomingIndex {
			if index >= row {
				u.selectedUpcoming = i
				break
			}
		}
		return u.setFocus(gui, viewUpcoming)
	case viewHistory:
		u.selectedHistory = max(min(row, len(u.historyItems)-1), 0)
		return u.setFocus(gui, viewHistory)
	default:
		return nil
	}
}

// selectCell selects the day drawn at a grid line and column. Line 0 holds
// the weekday labels.
func (u *UI) selectCell(line, column int) bool {
	if line < 1 || column < 0 || column > 6 {
		return false
	}
	index := (line-1)*7 + column
	if index >= len(u.monthView.Cells) {
		return false
	}
	cell := u.monthView.Cells[index]
	if cell.Day == 0 {
		return false
	}
	u.selectDay(cell.Date)
	return true
}

func (u *UI) bindMouseScroll(gui *gocui.Gui) error {
	views := []string{viewDay, viewUpcoming, viewDetail, viewHistory}
	for _, name := range views {
		if err := gui.SetKeybinding(name, gocui.MouseWheelUp, gocui.ModNone, u.scrollUp); err != nil {
			return err
		}
		if err := gui.SetKeybinding(name, gocui.MouseWheelDown, gocui.ModNone, u.scrollDown); err != nil {
			return err
		}
	}
	return nil
}

func (u *UI) scrollUp(gui *gocui.Gui, view *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	if view == nil {
		view = gui.CurrentView()
	}
	if view == nil {
		return nil
	}
	view.ScrollUp(1)
	return nil
}

func (u *UI) scrollDown(gui *gocui.Gui, view *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	if view == nil {
		view = gui.CurrentView()
	}
	if view == nil {
		return nil
	}
	view.ScrollDown(1)
	return nil
}

func (u *UI) switchFocus(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}

	next := viewMonth
	switch u.focus {
	case viewMonth:
		next = viewDay
	case viewDay:
		next = viewUpcoming
	case viewUpcoming:
		next = viewHistory
	}
	return u.setFocus(gui, next)
}

func (u *UI) focusMonth(gui *gocui.Gui, _ *gocui.View) error {
	return u.setFocus(gui, viewMonth)
}

func (u *UI) focusDay(gui *gocui.Gui, _ *gocui.View) error {
	return u.setFocus(gui, viewDay)
}

func (u *UI) focusUpcoming(gui *gocui.Gui, _ *gocui.View) error {
	return u.setFocus(gui, viewUpcoming)
}

func (u *UI) focusDetail(gui *gocui.Gui, _ *gocui.View) error {
	return u.setFocus(gui, viewDetail)
}

func (u *UI) focusHistory(gui *gocui.Gui, _ *gocui.View) error {
	return u.setFocus(gui, viewHistory)
}

func (u *UI) setFocus(gui *gocui.Gui, name string) error {
	if u.inputActive() {
		return nil
	}
	u.focus = name
	if name == viewDay || name == viewUpcoming {
		u.lastList = name
	}
	if gui != nil {
		_, _ = gui.SetCurrentView(name)
	}
	return u.loadHistory()
}

func (u *UI) moveDown(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	switch u.focus {
	case viewMonth:
		return u.moveDay(7)
	case viewDay:
		if u.selectedEvent < len(u.dayEvents)-1 {
			u.selectedEvent++
			return u.loadHistory()
		}
	case viewUpcoming:
		if u.selectedUpcoming < len(u.upcomingIndex)-1 {
			u.selectedUpcoming++
			return u.loadHistory()
		}
	case viewHistory:
		if u.selectedHistory < len(u.historyItems)-1 {
			u.selectedHistory++
		}
	}
	return nil
}

func (u *UI) moveUp(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	switch u.focus {
	case viewMonth:
		return u.moveDay(-7)
	case viewDay:
		if u.selectedEvent > 0 {
			u.selectedEvent--
			return u.loadHistory()
		}
	case viewUpcoming:
		if u.selectedUpcoming > 0 {
			u.selectedUpcoming--
			return u.loadHistory()
		}
	case viewHistory:
		if u.selectedHistory > 0 {
			u.selectedHistory--
		}
	}
	return nil
}

func (u *UI) moveDay(delta int) error {
	u.selectDay(u.selectedDay.AddDate(0, 0, delta))
	return u.loadEvents()
}

func (u *UI) prevDay(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	return u.moveDay(-1)
}

func (u *UI) nextDay(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	return u.moveDay(1)
}

// shiftMonth moves the grid by delta months and keeps the day of month,
// clamped to the target month's length.
func (u *UI) shiftMonth(delta int) error {
	year, month := calendar.AddMonths(u.year, u.month, delta)
	day := min(u.selectedDay.Day(), calendar.DaysInMonth(year, month))
	u.selectDay(u.planner.Calendar().Date(year, month, day))
	return u.loadEvents()
}

func (u *UI) prevMonth(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	return u.shiftMonth(-1)
}

func (u *UI) nextMonth(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	return u.shiftMonth(1)
}

func (u *UI) jumpToday(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	u.selectDay(u.planner.Now())
	return u.loadEvents()
}

// openSelectedDay moves the grid to the day of the highlighted upcoming event.
func (u *UI) openSelectedDay(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	selected := u.selectedItem()
	if selected == nil {
		return nil
	}
	id := selected.ID
	u.selectDay(selected.Timestamp)
	if err := u.loadEvents(); err != nil {
		return err
	}
	for i, event := range u.dayEvents {
		if event.ID == id {
			u.selectedEvent = i
		}
	}
	return u.setFocus(gui, viewDay)
}

func (u *UI) reload(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	u.status = ""
	return u.loadEvents()
}

func (u *UI) clearSearch(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	u.query = ""
	u.selectedUpcoming = 0
	return u.reload(gui, nil)
}

func (u *UI) startSearch(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	if u.search == nil {
		u.status = "search is not available for this store"
		return nil
	}
	u.searchActive = true
	return nil
}

func (u *UI) applySearch(query string) error {
	u.query = strings.TrimSpace(query)
	u.selectedUpcoming = 0
	u.status = ""
	return u.loadEvents()
}

func (u *UI) toggleHelp(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() && !u.helpActive {
		return nil
	}
	u.helpActive = !u.helpActive
	return nil
}

func (u *UI) closeHelp(gui *gocui.Gui, _ *gocui.View) error {
	u.helpActive = false
	_ = gui.DeleteView(viewHelp)
	_, _ = gui.SetCurrentView(u.focus)
	return nil
}

func (u *UI) showHelp(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	width := max(60, maxX/2)
	height := 16
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2
	x1 := x0 + width
	y1 := y0 + height
	view, err := gui.SetView(viewHelp, x0, y0, x1, y1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Title = "Help"
		view.Wrap = true
	}
	view.Clear()
	fmt.Fprint(view, helpText())
	_, _ = gui.SetCurrentView(viewHelp)
	return nil
}

func (u *UI) showSearch(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	width := max(30, maxX/2)
	height := 3
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2
	x1 := x0 + width
	y1 := y0 + height
	view, err := gui.SetView(viewSearch, x0, y0, x1, y1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Title = "Search"
		view.Wrap = true
		view.Clear()
		fmt.Fprint(view, u.query)
	}
	view.Editable = true
	view.Editor = gocui.DefaultEditor
	_, _ = gui.SetCurrentView(viewSearch)
	return nil
}

func (u *UI) submitSearch(gui *gocui.Gui, view *gocui.View) error {
	value := view.Buffer()
	u.searchActive = false
	_ = gui.DeleteView(viewSearch)
	_, _ = gui.SetCurrentView(u.focus)
	return u.applySearch(value)
}

func (u *UI) cancelSearch(gui *gocui.Gui, _ *gocui.View) error {
	u.searchActive = false
	_ = gui.DeleteView(viewSearch)
	_, _ = gui.SetCurrentView(u.focus)
	return nil
}

func (u *UI) addEvent(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	input := planner.Input{Date: u.selectedDay.Format(planner.DateLayout)}
	u.form = &formState{fields: buildFormFields(input)}
	return nil
}

func (u *UI) editEvent(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	selected := u.selectedItem()
	if selected == nil {
		return nil
	}
	u.form = &formState{eventID: selected.ID, fields: buildFormFields(u.planner.InputFor(*selected))}
	return nil
}

func (u *UI) showForm(gui *gocui.Gui) error {
	if u.form == nil {
		return nil
	}
	maxX, maxY := gui.Size()
	width := max(60, maxX/2)
	height := min(10, max(7, maxY/2))
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2
	x1 := x0 + width
	y1 := y0 + height
	view, err := gui.SetView(viewForm, x0, y0, x1, y1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Wrap = true
	}
	view.Title = "New Event"
	if u.form.eventID != 0 {
		view.Title = "Edit Event"
	}
	view.Editable = true
	view.KeybindOnEdit = true
	view.Editor = u.formEditor
	u.renderForm(view)
	_, _ = gui.SetCurrentView(viewForm)
	return nil
}

// saveForm validates the form and writes it through the planner. The form
// stays open with the reason on the status line when the input is rejected.
func (u *UI) saveForm() (bool, error) {
	if u.form == nil {
		return false, nil
	}
	ctx := context.Background()
	event, err := u.planner.BuildEvent(parseFormFields(u.form.fields))
	if err != nil {
		u.status = err.Error()
		return false, nil
	}

	if u.form.eventID == 0 {
		created, err := u.planner.Create(ctx, event)
		if err != nil {
			u.status = err.Error()
			u.log.Error(ctx, "create event", logger.Error(err))
			return false, nil
		}
		event = created
	} else {
		event.ID = u.form.eventID
		if err := u.planner.Update(ctx, event); err != nil {
			u.status = err.Error()
			u.log.Error(ctx, "update event", logger.Int64("id", event.ID), logger.Error(err))
			return false, nil
		}
	}

	u.form = nil
	u.status = ""
	u.selectDay(event.Timestamp)
	if err := u.loadEvents(); err != nil {
		return true, err
	}
	for i, candidate := range u.dayEvents {
		if candidate.ID == event.ID {
			u.selectedEvent = i
		}
	}
	return true, nil
}

func (u *UI) submitFormNow(gui *gocui.Gui, view *gocui.View) error {
	saved, err := u.saveForm()
	if saved {
		_ = gui.DeleteView(viewForm)
		_, _ = gui.SetCurrentView(u.focus)
	}
	return err
}

func (u *UI) cancelForm(gui *gocui.Gui, _ *gocui.View) error {
	u.form = nil
	_ = gui.DeleteView(viewForm)
	_, _ = gui.SetCurrentView(u.focus)
	return nil
}

func (u *UI) nextFormField(gui *gocui.Gui, view *gocui.View) error {
	if u.form == nil {
		return nil
	}
	if u.form.index < len(u.form.fields)-1 {
		u.form.index++
	}
	u.renderForm(view)
	return nil
}

func (u *UI) prevFormField(gui *gocui.Gui, view *gocui.View) error {
	if u.form == nil {
		return nil
	}
	if u.form.index > 0 {
		u.form.index--
	}
	u.renderForm(view)
	return nil
}

func (u *UI) renderForm(view *gocui.View) {
	if u.form == nil || view == nil {
		return
	}
	view.Clear()
	for index, field := range u.form.fields {
		prefix := "  "
		if index == u.form.index {
			prefix = "> "
		}
		fmt.Fprintf(view, "%s%s: %s\n", prefix, field.Label, field.Value)
	}
	if u.status != "" {
		fmt.Fprintf(view, "\n  %s", u.status)
	}
	label := u.form.fields[u.form.index].Label + ": "
	cursorX := len([]rune(label)) + len([]rune(u.form.fields[u.form.index].Value)) + 2
	view.SetCursor(cursorX, u.form.index)
}

func (e *formEditor) Edit(view *gocui.View, key gocui.Key, ch rune, mod gocui.Modifier) bool {
	ui := e.ui
	if ui == nil || ui.form == nil || view == nil {
		return false
	}
	field := &ui.form.fields[ui.form.index]
	switch key {
	case gocui.KeyBackspace, gocui.KeyBackspace2:
		runes := []rune(field.Value)
		if len(runes) > 0 {
			field.Value = string(runes[:len(runes)-1])
		}
	case gocui.KeySpace:
		field.Value += " "
	case gocui.KeyCtrlU:
		field.Value = ""
	}
	if ch != 0 && ch != '\n' && ch != '\r' && mod == 0 {
		field.Value += string(ch)
	}
	ui.renderForm(view)
	return true
}

func (u *UI) deleteEvent(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	selected := u.selectedItem()
	if selected == nil {
		return nil
	}
	ctx := context.Background()
	if err := u.planner.Delete(ctx, selected.ID); err != nil {
		u.status = err.Error()
		u.log.Error(ctx, "delete event", logger.Int64("id", selected.ID), logger.Error(err))
		return nil
	}
	u.status = ""
	return u.loadEvents()
}

func (u *UI) inputActive() bool {
	return u.searchActive || u.form != nil || u.helpActive
}

func (u *UI) quit(_ *gocui.Gui, _ *gocui.View) error {
	return gocui.ErrQuit
}

func helpText() string {
	return strings.Join([]string{
		"Navigation:",
		"  Tab cycle panes (month/day/upcoming/history)",
		"  1 Month | 2 Day | 3 Upcoming | 4 Detail | 5 History",
		"  h/l or left/right previous/next day (Month pane)",
		"  j/k or up/down previous/next week (Month pane), move selection elsewhere",
		"  [ / ] previous/next month | t jump to today",
		"  enter open day (Month, Upcoming) | mouse click selects",
		"",
		"Events:",
		"  a add on the selected day | e edit | d delete",
		"  form: tab/arrows move field, enter save, esc cancel, ctrl-u clear field",
		"",
		"Search:",
		"  / search titles and descriptions | g clear search",
		"",
		"Other:",
		"  r reload | ? help | esc/q close help | q quit",
	}, "\n")
}

func applyViewStyle(view *gocui.View, focused bool, highlight bool) {
	view.Frame = true
	view.Highlight = focused && highlight
	view.HighlightInactive = false
	view.SelBgColor = gocui.ColorBlue
	view.SelFgColor = gocui.ColorBlack
	view.InactiveViewSelBgColor = gocui.ColorDefault
	if focused {
		view.FrameColor = gocui.ColorCyan
		view.TitleColor = gocui.ColorCyan
	} else {
		view.FrameColor = gocui.ColorDefault
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
