// Package roomview draws the room's world map in a terminal: land, trails and
// avatars over three wraparound copies of the grid, with a status bar of
// agents underneath.
package roomview

import (
	"context"
	"math"
	"sort"
	"strconv"
	"time"
	"unicode"

	"github.com/gdamore/tcell/v2"

	"liferoom.ai/internal/camera"
	"liferoom.ai/internal/placement"
	"liferoom.ai/internal/room"
)

// CellW is the number of terminal columns per grid cell; terminal glyphs
// are about twice as tall as they are wide.
const CellW = 2

type Fetcher interface {
	Fetch(ctx context.Context) (Data, error)
}

type Options struct {
	Grid     placement.Grid
	Palette  []string
	MaxTrail int
	Cooldown time.Duration
	Lookup   placement.Lookup
	// Geocoder resolves agents the layout could not place. Nil disables it.
	Geocoder placement.Geocoder
}

type card struct {
	Name      string
	Round     int
	Countdown string
	Urgent    bool
	x0, x1    int
}

type frame struct {
	data   Data
	layout placement.Layout
	err    error
}

type View struct {
	screen   tcell.Screen
	src      Fetcher
	opts     Options
	mask     *placement.LandMask
	resolver *placement.Resolver
	now      func() time.Time

	cam    camera.Camera
	data   Data
	layout placement.Layout
	cards  []card
	next   int
	err    error
	pressY int
	// focus is the agent last panned to; its intersections are drawn.
	focus string
}

func New(screen tcell.Screen, src Fetcher, opts Options) *View {
	if !opts.Grid.Valid() {
		opts.Grid = placement.DefaultGrid()
	}
	if len(opts.Palette) == 0 {
		opts.Palette = placement.DefaultPalette
	}
	v := &View{
		screen: screen,
		src:    src,
		opts:   opts,
		mask:   placement.LandMaskFor(opts.Grid),
		now:    time.Now,
	}
	if opts.Geocoder != nil {
		v.resolver = placement.NewResolver(opts.Geocoder)
	}
	return v
}

func (v *View) mapWidth() float64 { return float64(v.opts.Grid.W * CellW) }

// Camera exposes the pan state.
func (v *View) Camera() *camera.Camera { return &v.cam }

func (v *View) Layout() placement.Layout { return v.layout }

// Focus names the agent whose intersections are highlighted, if any.
func (v *View) Focus() string { return v.focus }

func (v *View) compute(d Data) placement.Layout {
	refs := make([]placement.AgentRef, 0, len(d.Agents))
	for _, a := range d.Agents {
		refs = append(refs, placement.AgentRef{Name: a.Name, DisplayName: d.DisplayNames[a.Name]})
	}
	in := placement.Input{
		Grid:          v.opts.Grid,
		Agents:        refs,
		LifeDays:      d.LifeDays,
		Intersections: d.Intersections,
		Lookup:        v.opts.Lookup,
		Palette:       v.opts.Palette,
		MaxTrail:      v.opts.MaxTrail,
	}
	if v.resolver != nil {
		in.Resolved = v.resolver.Resolved()
	}
	return placement.Compute(in)
}

// load fetches and lays out the room without touching view state, so it can
// run off the event loop.
func (v *View) load(ctx context.Context) frame {
	d, err := v.src.Fetch(ctx)
	l := v.compute(d)
	if len(l.Pending) > 0 && v.resolver != nil && v.resolver.Resolve(ctx, l.Pending) > 0 {
		l = v.compute(d)
	}
	return frame{data: d, layout: l, err: err}
}

func (v *View) apply(f frame) {
	v.data, v.layout, v.err = f.data, f.layout, f.err
	v.rebuildCards()
}

// Refresh fetches and applies a new frame synchronously.
func (v *View) Refresh(ctx context.Context) {
	v.apply(v.load(ctx))
}

func (v *View) rebuildCards() {
	rounds := map[string]int{}
	for _, d := range v.data.LifeDays {
		if d.RoundNumber > rounds[d.AgentName] {
			rounds[d.AgentName] = d.RoundNumber
		}
	}
	now := v.now()
	cards := make([]card, 0, len(v.data.Agents))
	for _, a := range v.data.Agents {
		c := card{Name: a.Name, Round: rounds[a.Name]}
		c.Countdown, c.Urgent = room.Countdown(a.LastActive, now, v.opts.Cooldown)
		cards = append(cards, c)
	}
	sort.SliceStable(cards, func(i, j int) bool {
		if cards[i].Round != cards[j].Round {
			return cards[i].Round > cards[j].Round
		}
		return cards[i].Name < cards[j].Name
	})
	v.cards = cards
}

// PanToAgent starts a pan that centres the agent's avatar on screen.
func (v *View) PanToAgent(name string) bool {
	a, ok := v.layout.Agent(name)
	if !ok {
		return false
	}
	w, _ := v.screen.Size()
	v.cam.PanTo(camera.AgentTarget(float64(w)/2, 0, a.Cell.Col, CellW), v.mapWidth())
	v.focus = name
	return true
}

// panToNext cycles through the status cards in display order, skipping
// agents that are not on the map.
func (v *View) panToNext() {
	for range v.cards {
		c := v.cards[v.next%len(v.cards)]
		v.next++
		if v.PanToAgent(c.Name) {
			return
		}
	}
}

// HandleEvent applies one input event. It reports whether the viewer should
// quit and whether a refresh was requested.
func (v *View) HandleEvent(ev tcell.Event) (quit, refresh bool) {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape:
			if v.focus != "" {
				v.focus = ""
				return false, false
			}
			return true, false
		case tcell.KeyCtrlC:
			return true, false
		case tcell.KeyTab:
			v.panToNext()
		case tcell.KeyLeft:
			v.cam.Cancel()
			v.cam.Offset += 5 * CellW
		case tcell.KeyRight:
			v.cam.Cancel()
			v.cam.Offset -= 5 * CellW
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'q':
				return true, false
			case 'r':
				return false, true
			}
		}
	case *tcell.EventMouse:
		x, y := ev.Position()
		v.Pointer(x, y, ev.Buttons()&tcell.Button1 != 0)
	case *tcell.EventResize:
		v.screen.Sync()
	}
	return false, false
}

// Pointer feeds one mouse sample. A press that never turns into a drag is a
// click, which on the status bar pans to that agent.
func (v *View) Pointer(x, y int, down bool) {
	switch {
	case down && !v.cam.Dragging():
		v.pressY = y
		v.cam.PointerDown(float64(x))
	case down:
		v.cam.PointerMove(float64(x))
	case v.cam.Dragging():
		v.cam.PointerUp()
		if !v.cam.Dragged() {
			v.click(x, v.pressY)
		}
	}
}

func (v *View) click(x, y int) {
	_, h := v.screen.Size()
	if y != h-1 {
		return
	}
	for _, c := range v.cards {
		if x >= c.x0 && x < c.x1 {
			v.PanToAgent(c.Name)
			return
		}
	}
}

var (
	styleLand   = tcell.StyleDefault.Foreground(tcell.NewRGBColor(70, 82, 70))
	styleStatus = tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.NewRGBColor(24, 28, 36))
	styleUrgent = styleStatus.Foreground(tcell.ColorRed)
	styleLink   = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	styleFocus  = styleStatus.Foreground(tcell.ColorYellow).Bold(true)
)

func (v *View) agentColor(hex string) tcell.Color {
	if c := tcell.GetColor(hex); c != tcell.ColorDefault {
		return c
	}
	return tcell.ColorWhite
}

func (v *View) set(x, y int, r rune, st tcell.Style) {
	w, h := v.screen.Size()
	if x < 0 || y < 0 || x >= w || y >= h-1 {
		return
	}
	v.screen.SetContent(x, y, r, nil, st)
}

// Draw renders one frame.
func (v *View) Draw() {
	v.screen.Clear()
	_, h := v.screen.Size()
	rows := v.opts.Grid.H
	if rows > h-1 {
		rows = h - 1
	}
	for _, o := range v.cam.TileOrigins(v.mapWidth()) {
		ox := int(math.Round(o))
		v.drawLand(ox, rows)
		v.drawTrails(ox)
		v.drawLinks(ox)
		v.drawAvatars(ox)
	}
	v.drawStatus()
	v.screen.Show()
}

func (v *View) drawLand(ox, rows int) {
	for r := 0; r < rows; r++ {
		for c := 0; c < v.opts.Grid.W; c++ {
			if v.mask.Land(placement.Cell{Col: c, Row: r}) {
				v.set(ox+c*CellW, r, '·', styleLand)
			}
		}
	}
}

func (v *View) drawTrails(ox int) {
	for _, a := range v.layout.Agents {
		st := tcell.StyleDefault.Foreground(v.agentColor(a.Color))
		for _, p := range v.layout.Trails[a.Name] {
			v.set(ox+p.Cell.Col*CellW, p.Cell.Row, '•', st)
		}
	}
}

// drawLinks joins the focused avatar to every agent it has intersected with:
// along the focused avatar's top row, then down or up to the other avatar.
func (v *View) drawLinks(ox int) {
	from, ok := v.layout.Agent(v.focus)
	if !ok {
		return
	}
	fx := ox + from.Cell.Col*CellW
	for _, name := range v.layout.Adjacency[v.focus] {
		to, ok := v.layout.Agent(name)
		if !ok {
			continue
		}
		tx := ox + to.Cell.Col*CellW
		lo, hi := fx, tx
		if lo > hi {
			lo, hi = hi, lo
		}
		for x := lo; x <= hi; x++ {
			v.set(x, from.Cell.Row, '─', styleLink)
		}
		top, bottom := from.Cell.Row, to.Cell.Row
		if top > bottom {
			top, bottom = bottom, top
		}
		for y := top + 1; y < bottom; y++ {
			v.set(tx, y, '│', styleLink)
		}
	}
}

func (v *View) drawAvatars(ox int) {
	for _, a := range v.layout.Agents {
		st := tcell.StyleDefault.Background(v.agentColor(a.Color)).Foreground(tcell.ColorBlack)
		if a.Name == v.focus {
			st = st.Bold(true).Underline(true)
		}
		x0 := ox + a.Cell.Col*CellW
		for dy := 0; dy < 2; dy++ {
			for dx := 0; dx < 2*CellW; dx++ {
				v.set(x0+dx, a.Cell.Row+dy, ' ', st)
			}
		}
		v.set(x0, a.Cell.Row, initial(a.DisplayName), st)
	}
}

func initial(name string) rune {
	for _, r := range name {
		return unicode.ToUpper(r)
	}
	return '?'
}

func (v *View) drawStatus() {
	w, h := v.screen.Size()
	y := h - 1
	for x := 0; x < w; x++ {
		v.screen.SetContent(x, y, ' ', nil, styleStatus)
	}
	put := func(x int, s string, st tcell.Style) int {
		for _, r := range s {
			if x >= w {
				break
			}
			v.screen.SetContent(x, y, r, nil, st)
			x++
		}
		return x
	}
	if len(v.cards) == 0 {
		msg := " no agents"
		if v.err != nil {
			msg += " (" + v.err.Error() + ")"
		}
		put(0, msg, styleStatus)
		return
	}
	x := 0
	for i := range v.cards {
		c := &v.cards[i]
		c.x0 = x
		name := styleStatus
		if c.Name == v.focus {
			name = styleFocus
		}
		x = put(x, " "+c.Name+" R"+strconv.Itoa(c.Round)+" ", name)
		st := styleStatus
		if c.Urgent {
			st = styleUrgent
		}
		x = put(x, c.Countdown, st)
		x = put(x, " │", styleStatus)
		c.x1 = x
	}
}

// Run drives the viewer until ctx ends or the user quits. Fetches run in the
// background; pans animate at roughly 60 frames per second.
func (v *View) Run(ctx context.Context, refreshEvery time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if refreshEvery <= 0 {
		refreshEvery = 30 * time.Second
	}

	events := make(chan tcell.Event, 64)
	go func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	frames := make(chan frame, 1)
	loading := false
	reload := func() {
		if loading {
			return
		}
		loading = true
		go func() { frames <- v.load(ctx) }()
	}
	reload()
	v.Draw()

	anim := time.NewTicker(16 * time.Millisecond)
	defer anim.Stop()
	refresh := time.NewTicker(refreshEvery)
	defer refresh.Stop()
	clock := time.NewTicker(time.Second)
	defer clock.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			quit, again := v.HandleEvent(ev)
			if quit {
				return
			}
			if again {
				reload()
			}
			v.Draw()
		case f := <-frames:
			loading = false
			v.apply(f)
			v.Draw()
		case <-anim.C:
			if v.cam.Step() {
				v.Draw()
			}
		case <-refresh.C:
			reload()
		case <-clock.C:
			v.rebuildCards()
			v.Draw()
		}
	}
}
