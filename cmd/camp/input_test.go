package main

import (
	"math"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/require"

	"lumbercamp.ai/internal/protocol"
)

type recorder struct{ cmds []protocol.Command }

func (r *recorder) send(c protocol.Command) { r.cmds = append(r.cmds, c) }

func newTestUI() (*ui, *recorder) {
	rec := &recorder{}
	u := newUI(5, rec.send)
	u.vp.w, u.vp.h = 100, 25
	u.st = campFrame()
	return u, rec
}

func typeLine(u *ui, line string) {
	u.handleEvent(tcell.NewEventKey(tcell.KeyRune, ':', tcell.ModNone))
	for _, r := range line {
		u.handleEvent(tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone))
	}
	u.handleEvent(tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone))
}

func TestUI_ConsoleSendsParsedCommand(t *testing.T) {
	u, rec := newTestUI()
	typeLine(u, "harvset n1")
	require.False(t, u.typing)
	require.Equal(t, []protocol.Command{{Kind: protocol.CmdHarvest, WorkerID: "W1", NodeID: "N1"}}, rec.cmds)
	require.Contains(t, u.status, "corrected")

	typeLine(u, "frobnicate")
	require.Len(t, rec.cmds, 1)
	require.True(t, u.statusErr)

	typeLine(u, "help")
	require.Len(t, rec.cmds, 1)
	require.Contains(t, u.status, "harvest")
}

func TestUI_ConsoleBackspaceAndEscape(t *testing.T) {
	u, rec := newTestUI()
	u.handleEvent(tcell.NewEventKey(tcell.KeyRune, ':', tcell.ModNone))
	for _, r := range "trainx" {
		u.handleEvent(tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone))
	}
	u.handleEvent(tcell.NewEventKey(tcell.KeyBackspace2, 0, tcell.ModNone))
	require.Equal(t, "train", string(u.buf))
	u.handleEvent(tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone))
	require.False(t, u.typing)
	require.Empty(t, rec.cmds)
}

func TestUI_ShortcutKeys(t *testing.T) {
	u, rec := newTestUI()
	u.handleEvent(tcell.NewEventKey(tcell.KeyRune, 't', tcell.ModNone))
	u.handleEvent(tcell.NewEventKey(tcell.KeyRune, 'd', tcell.ModNone))
	u.handleEvent(tcell.NewEventKey(tcell.KeyRune, 'h', tcell.ModNone))
	u.handleEvent(tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModNone))
	require.Equal(t, []protocol.Command{
		{Kind: protocol.CmdTrain},
		{Kind: protocol.CmdDeposit, WorkerID: "W1"},
		{Kind: protocol.CmdHarvest, WorkerID: "W1"},
		{Kind: protocol.CmdSelect, Entity: "W2"},
	}, rec.cmds)

	require.False(t, u.handleEvent(tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)))
}

func TestUI_WorkerShortcutNeedsSelection(t *testing.T) {
	u, rec := newTestUI()
	u.st.Selection = protocol.SelectionState{Kind: protocol.SelectHome}
	u.handleEvent(tcell.NewEventKey(tcell.KeyRune, 'd', tcell.ModNone))
	require.Empty(t, rec.cmds)
	require.True(t, u.statusErr)
}

func TestUI_MouseSelectsAndActs(t *testing.T) {
	u, rec := newTestUI()
	hx, hy := u.vp.toScreen(u.st.Home.Pos)
	u.handleEvent(tcell.NewEventMouse(hx, hy, tcell.Button1, tcell.ModNone))

	nx, ny := u.vp.toScreen(u.st.Nodes[0].Pos)
	u.handleEvent(tcell.NewEventMouse(nx, ny, tcell.Button2, tcell.ModNone))

	// Clicks on the HUD row are ignored.
	u.handleEvent(tcell.NewEventMouse(hx, 0, tcell.Button1, tcell.ModNone))

	require.Len(t, rec.cmds, 2)
	require.Equal(t, protocol.Command{Kind: protocol.CmdSelect, Entity: protocol.EntityHome}, rec.cmds[0])
	require.Equal(t, protocol.CmdCommandAt, rec.cmds[1].Kind)
	require.NotNil(t, rec.cmds[1].Target)
	require.InDelta(t, 200, rec.cmds[1].Target[0], u.vp.scale)
}

func TestUI_ZoomAndPan(t *testing.T) {
	u, _ := newTestUI()
	u.handleEvent(tcell.NewEventKey(tcell.KeyRune, '-', tcell.ModNone))
	require.Equal(t, 6.0, u.vp.scale)
	u.handleEvent(tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModNone))
	require.Equal(t, 48.0, u.vp.center[0])
	u.handleEvent(tcell.NewEventKey(tcell.KeyRune, '0', tcell.ModNone))
	require.Equal(t, [2]float64{}, u.vp.center)
}

func TestCheckScale(t *testing.T) {
	for _, s := range []float64{minScale, 6, maxScale} {
		require.NoError(t, checkScale(s), s)
	}
	for _, s := range []float64{0, -3, maxScale + 1, math.NaN(), math.Inf(1)} {
		require.Error(t, checkScale(s), s)
	}

	// Rejected before any connection is attempted.
	err := run("ws://127.0.0.1:1/v1/ws", "camp", 0)
	require.ErrorContains(t, err, "scale")
}
