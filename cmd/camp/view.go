package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/gdamore/tcell/v2"

	"lumbercamp.ai/internal/protocol"
)

// Click radii in world units, matching the server's picking defaults.
const (
	pickWorkerRadius = 25
	pickHomeRadius   = 50
)

var (
	styleHUD      = tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorDarkSlateGray)
	styleStatus   = tcell.StyleDefault.Foreground(tcell.ColorSilver)
	styleError    = tcell.StyleDefault.Foreground(tcell.ColorRed)
	styleHome     = tcell.StyleDefault.Foreground(tcell.ColorSandyBrown).Bold(true)
	styleTree     = tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)
	styleStump    = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleLabel    = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleTarget   = tcell.StyleDefault.Foreground(tcell.ColorDarkGray)
	styleIdle     = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleMoving   = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	styleHarvest  = tcell.StyleDefault.Foreground(tcell.ColorLime)
	styleCanTrain = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorLime)
)

// viewport maps world coordinates onto terminal cells. Rows count double
// since a cell is about twice as tall as it is wide. World y grows downward,
// like screen rows.
type viewport struct {
	w, h   int
	scale  float64 // world units per column
	center [2]float64
}

// mapTop and mapBottom bound the rows the camp is drawn in; the first row is
// the HUD, the last two are status and console.
func (v viewport) mapTop() int    { return 1 }
func (v viewport) mapBottom() int { return v.h - 3 }

func (v viewport) toScreen(p [2]float64) (int, int) {
	midX := v.w / 2
	midY := (v.mapTop() + v.mapBottom()) / 2
	x := midX + int(math.Round((p[0]-v.center[0])/v.scale))
	y := midY + int(math.Round((p[1]-v.center[1])/(2*v.scale)))
	return x, y
}

func (v viewport) toWorld(x, y int) [2]float64 {
	midX := v.w / 2
	midY := (v.mapTop() + v.mapBottom()) / 2
	return [2]float64{
		v.center[0] + float64(x-midX)*v.scale,
		v.center[1] + float64(y-midY)*2*v.scale,
	}
}

func (v viewport) inMap(x, y int) bool {
	return x >= 0 && x < v.w && y >= v.mapTop() && y <= v.mapBottom()
}

// pick returns the SELECT entity for a click at p: the nearest worker in
// reach, else home, else "" for none.
func pick(st *protocol.StateMsg, p [2]float64) string {
	if st == nil {
		return ""
	}
	best, bestD := "", math.Inf(1)
	for _, wk := range st.Workers {
		d := math.Hypot(wk.Pos[0]-p[0], wk.Pos[1]-p[1])
		if d <= pickWorkerRadius && (d < bestD || (d == bestD && wk.ID < best)) {
			best, bestD = wk.ID, d
		}
	}
	if best != "" {
		return best
	}
	if math.Hypot(st.Home.Pos[0]-p[0], st.Home.Pos[1]-p[1]) <= pickHomeRadius {
		return protocol.EntityHome
	}
	return ""
}

func drawText(s tcell.Screen, x, y int, style tcell.Style, text string) int {
	for _, r := range text {
		s.SetContent(x, y, r, nil, style)
		x++
	}
	return x
}

func fillRow(s tcell.Screen, y, w int, style tcell.Style) {
	for x := 0; x < w; x++ {
		s.SetContent(x, y, ' ', nil, style)
	}
}

func (u *ui) draw(s tcell.Screen) {
	s.Clear()
	u.vp.w, u.vp.h = s.Size()
	if u.vp.h < 5 {
		s.Show()
		return
	}
	u.drawHUD(s)
	if st := u.st; st != nil {
		u.drawCamp(s, st)
	}
	u.drawFooter(s)
	s.Show()
}

func (u *ui) drawHUD(s tcell.Screen) {
	fillRow(s, 0, u.vp.w, styleHUD)
	st := u.st
	if st == nil {
		drawText(s, 1, 0, styleHUD, "waiting for camp state...")
		return
	}
	trees := make([]string, 0, len(st.Nodes))
	for _, n := range st.Nodes {
		trees = append(trees, fmt.Sprintf("%s:%d", n.ID, n.Wood))
	}
	sel := "none"
	switch st.Selection.Kind {
	case protocol.SelectHome:
		sel = "home"
	case protocol.SelectWorker:
		sel = st.Selection.WorkerID
	}
	x := drawText(s, 1, 0, styleHUD, fmt.Sprintf("tick %d  wood %d  workers %d  trees %s  sel %s  ",
		st.Tick, st.Home.WoodStored, len(st.Workers), strings.Join(trees, " "), sel))
	train := styleHUD
	if st.Home.CanTrain {
		train = styleCanTrain
	}
	drawText(s, x, 0, train, fmt.Sprintf("[t]rain %d", u.params.WorkerCost))
}

func (u *ui) drawCamp(s tcell.Screen, st *protocol.StateMsg) {
	put := func(p [2]float64, r rune, style tcell.Style, label string, labelStyle tcell.Style) {
		x, y := u.vp.toScreen(p)
		if !u.vp.inMap(x, y) {
			return
		}
		s.SetContent(x, y, r, nil, style)
		if label != "" {
			for i, c := range label {
				if u.vp.inMap(x+1+i, y) {
					s.SetContent(x+1+i, y, c, nil, labelStyle)
				}
			}
		}
	}

	for _, wk := range st.Workers {
		if wk.Target != nil && wk.State == protocol.WorkerMoving {
			put(*wk.Target, '+', styleTarget, "", styleTarget)
		}
	}

	home := styleHome
	if st.Home.Selected {
		home = home.Reverse(true)
	}
	put(st.Home.Pos, 'H', home, fmt.Sprintf("%d", st.Home.WoodStored), styleLabel)

	for _, n := range st.Nodes {
		glyph, style := 'T', styleTree
		if n.Wood == 0 {
			glyph, style = '_', styleStump
		}
		put(n.Pos, glyph, style, fmt.Sprintf("%d", n.Wood), styleLabel)
	}

	for _, wk := range st.Workers {
		style := styleIdle
		switch wk.State {
		case protocol.WorkerMoving:
			style = styleMoving
		case protocol.WorkerHarvesting:
			style = styleHarvest
		}
		if wk.Selected {
			style = style.Reverse(true)
		}
		label := wk.ID
		if wk.WoodCarried > 0 {
			label = fmt.Sprintf("%s(%d)", wk.ID, wk.WoodCarried)
		}
		put(wk.Pos, '@', style, label, styleLabel)
	}
}

func (u *ui) drawFooter(s tcell.Screen) {
	statusY, consoleY := u.vp.h-2, u.vp.h-1
	style := styleStatus
	if u.statusErr {
		style = styleError
	}
	drawText(s, 0, statusY, style, u.status)

	if u.typing {
		x := drawText(s, 0, consoleY, styleIdle, ":"+string(u.buf))
		s.ShowCursor(x, consoleY)
		return
	}
	s.HideCursor()
	drawText(s, 0, consoleY, styleStatus, "click: select  right-click: act  t d h: train deposit harvest  tab: next  : console  ? help  q quit")
}
