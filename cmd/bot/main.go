package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"lumbercamp.ai/internal/protocol"
)

func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name       = flag.String("name", "bot", "viewer name")
		maxWorkers = flag.Int("max_workers", 6, "stop training at this many workers")
		retryMS    = flag.Int("retry_ms", 2000, "re-issue a command to a worker still idle after this long")
		stay       = flag.Bool("stay", false, "keep watching after the camp is depleted")
	)
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logger.WithField("bot", *name)

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		log.WithError(err).Fatal("dial")
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ViewerName:      *name,
		MaxQueue:        4,
	}
	if err := conn.WriteJSON(hello); err != nil {
		log.WithError(err).Fatal("send HELLO")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	var (
		p        *planner
		seq      int
		last     uint64
		logEvery uint64 = 100
	)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
				log.Warn("server busy: another viewer is attached")
			}
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			retryTicks := uint64(*retryMS * w.WorldParams.TickRateHz / 1000)
			p = newPlanner(*maxWorkers, retryTicks)
			logEvery = uint64(5 * w.WorldParams.TickRateHz)
			log.WithFields(logrus.Fields{"session": w.SessionID, "world": w.WorldID, "tick_rate": w.WorldParams.TickRateHz}).Info("WELCOME")

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				continue
			}
			log.WithFields(logrus.Fields{"code": e.Code, "ref": e.Ref}).Warn(e.Message)

		case protocol.TypeState:
			if p == nil {
				continue
			}
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			for _, c := range p.Next(&st) {
				seq++
				cmd := protocol.CmdMsg{
					Type:            protocol.TypeCmd,
					ProtocolVersion: protocol.Version,
					ID:              fmt.Sprintf("b%d", seq),
					Command:         c,
				}
				if err := conn.WriteJSON(cmd); err != nil {
					log.WithError(err).Error("send CMD")
					return
				}
				log.WithFields(logrus.Fields{"tick": st.Tick, "kind": c.Kind, "worker": c.WorkerID, "node": c.NodeID}).Debug("CMD")
			}
			if st.Tick >= last+logEvery {
				last = st.Tick
				log.WithFields(logrus.Fields{"tick": st.Tick, "workers": len(st.Workers), "stored": st.Home.WoodStored, "left": woodLeft(&st)}).Info("camp")
			}
			if depleted(&st) && !*stay {
				log.WithFields(logrus.Fields{"tick": st.Tick, "workers": len(st.Workers), "stored": st.Home.WoodStored}).Info("camp depleted")
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"), time.Now().Add(time.Second))
				return
			}
		}
	}
}
