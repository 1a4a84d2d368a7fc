package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gorilla/websocket"

	"lumbercamp.ai/internal/protocol"
)

// serverMsg is one decoded server message handed to the UI loop.
type serverMsg struct {
	welcome *protocol.WelcomeMsg
	state   *protocol.StateMsg
	err     *protocol.ErrorMsg
}

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "camp", "viewer name")
		scale = flag.Float64("scale", 6, "world units per terminal column")
	)
	flag.Parse()

	if err := run(*url, *name, *scale); err != nil {
		fmt.Fprintln(os.Stderr, "camp:", err)
		os.Exit(1)
	}
}

func run(url, name string, scale float64) error {
	if err := checkScale(scale); err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ViewerName:      name,
		MaxQueue:        2,
	}
	if err := conn.WriteJSON(hello); err != nil {
		return fmt.Errorf("send HELLO: %w", err)
	}

	msgs := make(chan serverMsg, 16)
	readErr := make(chan error, 1)
	go readLoop(conn, msgs, readErr)

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()
	screen.EnableMouse()

	var seq int
	var sendErr error
	u := newUI(scale, func(c protocol.Command) {
		seq++
		msg := protocol.CmdMsg{
			Type:            protocol.TypeCmd,
			ProtocolVersion: protocol.Version,
			ID:              fmt.Sprintf("c%d", seq),
			Command:         c,
		}
		_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := conn.WriteJSON(msg); err != nil && sendErr == nil {
			sendErr = err
		}
	})

	events := make(chan tcell.Event, 32)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	redraw := time.NewTicker(50 * time.Millisecond)
	defer redraw.Stop()
	dirty := true

	for {
		select {
		case ev := <-events:
			if !u.handleEvent(ev) {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
				return nil
			}
			if sendErr != nil {
				return fmt.Errorf("send: %w", sendErr)
			}
			dirty = true

		case m := <-msgs:
			switch {
			case m.welcome != nil:
				u.params = m.welcome.WorldParams
				u.setStatus("joined %s as %s", m.welcome.WorldID, m.welcome.SessionID)
			case m.state != nil:
				u.st = m.state
			case m.err != nil:
				u.setError("%s: %s", m.err.Code, m.err.Message)
			}
			dirty = true

		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
				return fmt.Errorf("server busy: another viewer is attached")
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err

		case <-redraw.C:
			if dirty {
				u.draw(screen)
				dirty = false
			}
		}
	}
}

func readLoop(conn *websocket.Conn, out chan<- serverMsg, errs chan<- error) {
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			errs <- err
			return
		}
		base, err := protocol.DecodeBase(b)
		if err != nil {
			continue
		}
		var m serverMsg
		switch base.Type {
		case protocol.TypeWelcome:
			m.welcome = &protocol.WelcomeMsg{}
			err = json.Unmarshal(b, m.welcome)
		case protocol.TypeState:
			m.state = &protocol.StateMsg{}
			err = json.Unmarshal(b, m.state)
		case protocol.TypeError:
			m.err = &protocol.ErrorMsg{}
			err = json.Unmarshal(b, m.err)
		default:
			continue
		}
		if err != nil {
			continue
		}
		out <- m
	}
}
