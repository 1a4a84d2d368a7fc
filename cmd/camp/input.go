package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"

	"lumbercamp.ai/internal/console"
	"lumbercamp.ai/internal/protocol"
)

const (
	minScale = 1
	maxScale = 40
	panStep  = 8 // columns per arrow press
)

type ui struct {
	st     *protocol.StateMsg
	params protocol.WorldParams
	vp     viewport

	typing bool
	buf    []rune

	status    string
	statusErr bool

	// send queues a command for the server.
	send func(protocol.Command)
}

func checkScale(scale float64) error {
	if !(scale >= minScale && scale <= maxScale) {
		return fmt.Errorf("scale %v outside [%d, %d]", scale, minScale, maxScale)
	}
	return nil
}

func newUI(scale float64, send func(protocol.Command)) *ui {
	return &ui{vp: viewport{scale: scale}, send: send}
}

func (u *ui) setStatus(format string, args ...any) {
	u.status, u.statusErr = fmt.Sprintf(format, args...), false
}

func (u *ui) setError(format string, args ...any) {
	u.status, u.statusErr = fmt.Sprintf(format, args...), true
}

func (u *ui) selectedWorker() string {
	if u.st == nil || u.st.Selection.Kind != protocol.SelectWorker {
		return ""
	}
	return u.st.Selection.WorkerID
}

func (u *ui) consoleContext() console.Context {
	ctx := console.Context{Selected: u.selectedWorker()}
	if u.st == nil {
		return ctx
	}
	for _, wk := range u.st.Workers {
		ctx.Workers = append(ctx.Workers, wk.ID)
	}
	for _, n := range u.st.Nodes {
		ctx.Nodes = append(ctx.Nodes, n.ID)
	}
	return ctx
}

// handleEvent applies one terminal event. It returns false when the viewer
// should quit.
func (u *ui) handleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyCtrlC {
			return false
		}
		if u.typing {
			u.handleConsoleKey(ev)
			return true
		}
		return u.handleKey(ev)

	case *tcell.EventMouse:
		x, y := ev.Position()
		if !u.vp.inMap(x, y) {
			return true
		}
		p := u.vp.toWorld(x, y)
		switch {
		case ev.Buttons()&tcell.Button1 != 0:
			u.send(protocol.Command{Kind: protocol.CmdSelect, Entity: pick(u.st, p)})
		case ev.Buttons()&tcell.Button2 != 0:
			u.send(protocol.Command{Kind: protocol.CmdCommandAt, Target: &p})
			u.setStatus("act at %.0f,%.0f", p[0], p[1])
		}
	}
	return true
}

func (u *ui) handleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape:
		u.send(protocol.Command{Kind: protocol.CmdSelect})
		return true
	case tcell.KeyTab:
		u.cycleSelection()
		return true
	case tcell.KeyLeft:
		u.vp.center[0] -= panStep * u.vp.scale
		return true
	case tcell.KeyRight:
		u.vp.center[0] += panStep * u.vp.scale
		return true
	case tcell.KeyUp:
		u.vp.center[1] -= panStep * u.vp.scale
		return true
	case tcell.KeyDown:
		u.vp.center[1] += panStep * u.vp.scale
		return true
	case tcell.KeyRune:
	default:
		return true
	}

	switch ev.Rune() {
	case 'q':
		return false
	case ':':
		u.typing, u.buf = true, u.buf[:0]
	case '?':
		u.setStatus("%s", strings.Join(console.Usage(), " | "))
	case 't':
		u.send(protocol.Command{Kind: protocol.CmdTrain})
	case 'd':
		u.workerCommand(protocol.CmdDeposit)
	case 'h':
		u.workerCommand(protocol.CmdHarvest)
	case '+', '=':
		if u.vp.scale > minScale {
			u.vp.scale--
		}
	case '-':
		if u.vp.scale < maxScale {
			u.vp.scale++
		}
	case '0':
		u.vp.center = [2]float64{}
	}
	return true
}

func (u *ui) workerCommand(kind string) {
	id := u.selectedWorker()
	if id == "" {
		u.setError("select a worker first")
		return
	}
	u.send(protocol.Command{Kind: kind, WorkerID: id})
}

// cycleSelection selects the worker after the current one, by id.
func (u *ui) cycleSelection() {
	if u.st == nil || len(u.st.Workers) == 0 {
		return
	}
	ids := make([]string, 0, len(u.st.Workers))
	for _, wk := range u.st.Workers {
		ids = append(ids, wk.ID)
	}
	sort.Strings(ids)
	next := ids[0]
	if cur := u.selectedWorker(); cur != "" {
		i := sort.SearchStrings(ids, cur)
		if i < len(ids) && ids[i] == cur {
			next = ids[(i+1)%len(ids)]
		}
	}
	u.send(protocol.Command{Kind: protocol.CmdSelect, Entity: next})
}

func (u *ui) handleConsoleKey(ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyEscape:
		u.typing = false
	case tcell.KeyEnter:
		u.typing = false
		u.submit(string(u.buf))
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if len(u.buf) > 0 {
			u.buf = u.buf[:len(u.buf)-1]
		} else {
			u.typing = false
		}
	case tcell.KeyRune:
		u.buf = append(u.buf, ev.Rune())
	}
}

func (u *ui) submit(line string) {
	res, err := console.Parse(u.consoleContext(), line)
	switch {
	case errors.Is(err, console.ErrEmpty):
		return
	case err != nil:
		u.setError("%v", err)
		return
	case res.Help:
		u.setStatus("%s", strings.Join(console.Usage(), " | "))
		return
	}
	u.send(res.Command)
	if res.Corrected {
		u.setStatus("%s (corrected)", describe(res.Command))
	} else {
		u.setStatus("%s", describe(res.Command))
	}
}

func describe(c protocol.Command) string {
	parts := []string{strings.ToLower(c.Kind)}
	for _, s := range []string{c.WorkerID, c.NodeID, c.Entity} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if c.Target != nil {
		parts = append(parts, fmt.Sprintf("%.0f,%.0f", c.Target[0], c.Target[1]))
	}
	return strings.Join(parts, " ")
}
