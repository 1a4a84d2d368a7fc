package world

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"lumbercamp.ai/internal/persistence/snapshot"
	"lumbercamp.ai/internal/protocol"
	"lumbercamp.ai/internal/sim/geom"
	"lumbercamp.ai/internal/sim/placement"
	"lumbercamp.ai/internal/sim/schedule"
	"lumbercamp.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID     string
	Tuning tuning.Tuning
}

// CommandEnvelope is one queued input. Source names the session (or "replay").
type CommandEnvelope struct {
	Source string
	Ref    string
	Cmd    protocol.Command
}

type RecordedCommand struct {
	Source  string           `json:"source,omitempty"`
	Ref     string           `json:"ref,omitempty"`
	Command protocol.Command `json:"command"`
	// Accepted is false for commands dropped as no-ops.
	Accepted bool `json:"accepted"`
}

// ViewerJoin subscribes Out to STATE frames until the id is sent on Leave.
// The loop closes Ack once Out is registered. A join whose Done is already
// closed when the loop reaches it is dropped.
type ViewerJoin struct {
	ID   string
	Out  chan []byte
	Ack  chan struct{}
	Done <-chan struct{}
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type TickLogEntry struct {
	Tick     uint64            `json:"tick"`
	Commands []RecordedCommand `json:"commands,omitempty"`
	Digest   string            `json:"digest"`
}

type AuditEntry struct {
	Tick   uint64     `json:"tick"`
	Actor  string     `json:"actor"`
	Action string     `json:"action"` // e.g. "EXTRACT"
	NodeID string     `json:"node_id,omitempty"`
	Amount int        `json:"amount,omitempty"`
	Pos    [2]float64 `json:"pos"`
	Reason string     `json:"reason,omitempty"`
}

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine; other
// goroutines read State() and Metrics().
type World struct {
	cfg WorldConfig
	tun tuning.Tuning
	log logrus.FieldLogger

	tick atomic.Uint64

	workers   map[string]*Worker
	nodes     map[string]*ResourceNode
	nodeOrder []string
	home      *HomeBase
	selection EntityRef

	events   schedule.Queue
	rng      *rand.Rand
	resolver placement.Resolver
	slots    placement.SlotAllocator

	nextWorkerNum uint64
	nextTaskNum   uint64
	initialWood   int

	inbox chan CommandEnvelope
	join  chan ViewerJoin
	leave chan string
	admin chan adminSnapshotReq
	stop  chan struct{}

	viewers map[string]chan []byte

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger  TickLogger
	auditLogger AuditLogger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1

	frame   atomic.Pointer[protocol.StateMsg]
	metrics atomic.Value // WorldMetrics
	stats   *WorldStats
	totals  Totals

	// Commands applied during the current step, for the tick log.
	recorded []RecordedCommand
}

func New(cfg WorldConfig) (*World, error) {
	t := cfg.Tuning
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("world %s: %w", cfg.ID, err)
	}
	if cfg.ID == "" {
		cfg.ID = "camp"
	}

	nop := logrus.New()
	nop.SetOutput(io.Discard)

	w := &World{
		cfg:      cfg,
		tun:      t,
		log:      nop,
		workers:  map[string]*Worker{},
		nodes:    map[string]*ResourceNode{},
		home:     &HomeBase{Pos: geom.FromArray(t.Home.Pos), WoodStored: t.Home.Wood},
		rng:      rand.New(rand.NewSource(t.Seed)),
		resolver: placement.Resolver{Radius: t.CollisionRadius()},
		slots:    placement.SlotAllocator{MinRange: t.MinHarvestRange, MaxRange: t.MaxHarvestRange},
		inbox:    make(chan CommandEnvelope, 1024),
		join:     make(chan ViewerJoin, 4),
		leave:    make(chan string, 4),
		admin:    make(chan adminSnapshotReq, 4),
		stop:     make(chan struct{}),
		viewers:  map[string]chan []byte{},
		stats:    NewWorldStats(uint64(t.TickRateHz)*10, uint64(t.TickRateHz)*60),
	}
	w.initialWood = t.Home.Wood
	for _, nd := range t.Nodes {
		w.nodes[nd.ID] = &ResourceNode{ID: nd.ID, Pos: geom.FromArray(nd.Pos), Wood: nd.Wood}
		w.nodeOrder = append(w.nodeOrder, nd.ID)
		w.initialWood += nd.Wood
	}
	sort.Strings(w.nodeOrder)

	for i := 0; i < t.InitialWorkers; i++ {
		w.spawnWorker()
	}
	w.publish(0)
	return w, nil
}

func (w *World) SetLogger(l logrus.FieldLogger) {
	if l != nil {
		w.log = l.WithField("world", w.cfg.ID)
	}
}
func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger)                  { w.auditLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) ID() string                        { return w.cfg.ID }
func (w *World) Tuning() tuning.Tuning             { return w.tun }
func (w *World) Inbox() chan<- CommandEnvelope     { return w.inbox }
func (w *World) JoinViewer() chan<- ViewerJoin     { return w.join }
func (w *World) LeaveViewer() chan<- string        { return w.leave }
func (w *World) CurrentTick() uint64               { return w.tick.Load() }
func (w *World) WorldParams() protocol.WorldParams { return worldParams(w.tun) }

func worldParams(t tuning.Tuning) protocol.WorldParams {
	return protocol.WorldParams{
		TickRateHz:         t.TickRateHz,
		WorkerRadius:       t.WorkerRadius,
		HarvestRange:       t.HarvestRange,
		DepositRange:       t.DepositRange,
		MaxWoodCapacity:    t.MaxWoodCapacity,
		WorkerCost:         t.WorkerCost,
		MovementDurationMs: t.MovementDurationMs,
	}
}

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.tun.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending []CommandEnvelope

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			if req.Done != nil {
				select {
				case <-req.Done:
					continue
				default:
				}
			}
			w.viewers[req.ID] = req.Out
			if req.Ack != nil {
				close(req.Ack)
			}
			w.log.WithField("viewer", req.ID).Info("viewer attached")
		case id := <-w.leave:
			if _, ok := w.viewers[id]; ok {
				delete(w.viewers, id)
				w.log.WithField("viewer", id).Info("viewer detached")
			}
		case req := <-w.admin:
			w.handleAdminSnapshot(req)
		case env := <-w.inbox:
			pending = append(pending, env)
		case <-ticker.C:
			w.step(pending)
			pending = pending[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering semantics as the server.
// It is primarily intended for deterministic replays/tests.
func (w *World) StepOnce(cmds []CommandEnvelope) (tick uint64, digest string) {
	tick = w.tick.Load()
	digest = w.step(cmds)
	return tick, digest
}

func (w *World) step(cmds []CommandEnvelope) string {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	// Commands in receive order.
	w.recorded = w.recorded[:0]
	for _, env := range cmds {
		ok := w.apply(env.Cmd, nowTick)
		w.recorded = append(w.recorded, RecordedCommand{Source: env.Source, Ref: env.Ref, Command: env.Cmd, Accepted: ok})
		if !ok {
			w.stats.RecordRejected(nowTick)
			w.totals.CommandsRejected++
			w.log.WithFields(logrus.Fields{"tick": nowTick, "kind": env.Cmd.Kind, "worker": env.Cmd.WorkerID, "source": env.Source}).Debug("command ignored")
		} else {
			w.totals.CommandsApplied++
		}
	}

	// Systems: events -> movement (with arrival re-evaluation) -> harvest.
	w.systemEvents(nowTick)
	w.systemMovement(nowTick)
	w.systemHarvest(nowTick)

	w.checkInvariants(nowTick)

	digest := w.stateDigest(nowTick)
	if w.tickLogger != nil {
		entry := TickLogEntry{Tick: nowTick, Digest: digest}
		if len(w.recorded) > 0 {
			entry.Commands = append([]RecordedCommand(nil), w.recorded...)
		}
		if err := w.tickLogger.WriteTick(entry); err != nil {
			w.log.WithError(err).WithField("tick", nowTick).Warn("tick log write failed")
		}
	}

	w.publish(nowTick)

	if w.snapshotSink != nil && nowTick != 0 {
		if every := uint64(w.tun.SnapshotEveryTicks); every > 0 && nowTick%every == 0 {
			snap := w.ExportSnapshot(nowTick)
			select {
			case w.snapshotSink <- snap:
			default:
				// Drop snapshot if sink is backed up.
				w.log.WithField("tick", nowTick).Warn("snapshot sink full; snapshot dropped")
			}
		}
	}

	w.tick.Add(1)
	w.storeMetrics(nowTick, time.Since(stepStart))
	return digest
}

func (w *World) sortedWorkers() []*Worker {
	out := make([]*Worker, 0, len(w.workers))
	for _, wk := range w.workers {
		out = append(out, wk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) newTaskID() string {
	w.nextTaskNum++
	return fmt.Sprintf("T%06d", w.nextTaskNum)
}

func (w *World) audit(nowTick uint64, actor, action, nodeID string, amount int, pos geom.Vec2, reason string) {
	if w.auditLogger == nil {
		return
	}
	err := w.auditLogger.WriteAudit(AuditEntry{
		Tick:   nowTick,
		Actor:  actor,
		Action: action,
		NodeID: nodeID,
		Amount: amount,
		Pos:    pos.Array(),
		Reason: reason,
	})
	if err != nil {
		w.log.WithError(err).Warn("audit write failed")
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
