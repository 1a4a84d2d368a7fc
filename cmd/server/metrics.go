package main

import (
	"fmt"
	"io"

	"lumbercamp.ai/internal/persistence/indexdb"
	"lumbercamp.ai/internal/sim/placement"
	"lumbercamp.ai/internal/sim/world"
)

type wsStats struct {
	Active   bool
	Sessions uint64
	Rejected uint64
}

// writeMetrics renders the minimal Prometheus exposition format.
func writeMetrics(rw io.Writer, worldID string, tick uint64, m world.WorldMetrics, ws wsStats, idx *indexdb.Stats) {
	fmt.Fprintf(rw, "# HELP lumbercamp_world_tick Current world tick.\n")
	fmt.Fprintf(rw, "# TYPE lumbercamp_world_tick gauge\n")
	fmt.Fprintf(rw, "lumbercamp_world_tick{world=%q} %d\n", worldID, tick)

	fmt.Fprintf(rw, "# HELP lumbercamp_workers Workers by activity.\n")
	fmt.Fprintf(rw, "# TYPE lumbercamp_workers gauge\n")
	fmt.Fprintf(rw, "lumbercamp_workers{world=%q,state=%q} %d\n", worldID, "total", m.Workers)
	fmt.Fprintf(rw, "lumbercamp_workers{world=%q,state=%q} %d\n", worldID, "harvesting", m.Harvesting)
	fmt.Fprintf(rw, "lumbercamp_workers{world=%q,state=%q} %d\n", worldID, "moving", m.Moving)

	fmt.Fprintf(rw, "# HELP lumbercamp_wood Wood by location.\n")
	fmt.Fprintf(rw, "# TYPE lumbercamp_wood gauge\n")
	fmt.Fprintf(rw, "lumbercamp_wood{world=%q,where=%q} %d\n", worldID, "stored", m.WoodStored)
	fmt.Fprintf(rw, "lumbercamp_wood{world=%q,where=%q} %d\n", worldID, "remaining", m.WoodRemaining)
	fmt.Fprintf(rw, "lumbercamp_wood{world=%q,where=%q} %d\n", worldID, "carried", m.WoodCarried)

	fmt.Fprintf(rw, "# HELP lumbercamp_world_viewers Current number of attached viewers.\n")
	fmt.Fprintf(rw, "# TYPE lumbercamp_world_viewers gauge\n")
	fmt.Fprintf(rw, "lumbercamp_world_viewers{world=%q} %d\n", worldID, m.Viewers)

	fmt.Fprintf(rw, "# HELP lumbercamp_world_pending_events Scheduled events not yet fired.\n")
	fmt.Fprintf(rw, "# TYPE lumbercamp_world_pending_events gauge\n")
	fmt.Fprintf(rw, "lumbercamp_world_pending_events{world=%q} %d\n", worldID, m.PendingEvents)

	fmt.Fprintf(rw, "# HELP lumbercamp_world_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE lumbercamp_world_queue_depth gauge\n")
	fmt.Fprintf(rw, "lumbercamp_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(rw, "lumbercamp_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "join", m.QueueDepths.Join)
	fmt.Fprintf(rw, "lumbercamp_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "leave", m.QueueDepths.Leave)

	fmt.Fprintf(rw, "# HELP lumbercamp_world_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE lumbercamp_world_step_ms gauge\n")
	fmt.Fprintf(rw, "lumbercamp_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	t := m.Totals
	fmt.Fprintf(rw, "# HELP lumbercamp_commands_total Commands applied or ignored.\n")
	fmt.Fprintf(rw, "# TYPE lumbercamp_commands_total counter\n")
	fmt.Fprintf(rw, "lumbercamp_commands_total{world=%q,result=%q} %d\n", worldID, "applied", t.CommandsApplied)
	fmt.Fprintf(rw, "lumbercamp_commands_total{world=%q,result=%q} %d\n", worldID, "rejected", t.CommandsRejected)

	fmt.Fprintf(rw, "# HELP lumbercamp_wood_moved_total Wood units extracted from nodes or deposited at home.\n")
	fmt.Fprintf(rw, "# TYPE lumbercamp_wood_moved_total counter\n")
	fmt.Fprintf(rw, "lumbercamp_wood_moved_total{world=%q,kind=%q} %d\n", worldID, "extracted", t.WoodExtracted)
	fmt.Fprintf(rw, "lumbercamp_wood_moved_total{world=%q,kind=%q} %d\n", worldID, "deposited", t.WoodDeposited)

	fmt.Fprintf(rw, "# HELP lumbercamp_workers_trained_total Workers trained at home.\n")
	fmt.Fprintf(rw, "# TYPE lumbercamp_workers_trained_total counter\n")
	fmt.Fprintf(rw, "lumbercamp_workers_trained_total{world=%q} %d\n", worldID, t.WorkersTrained)

	fmt.Fprintf(rw, "# HELP lumbercamp_events_total Scheduled events by outcome.\n")
	fmt.Fprintf(rw, "# TYPE lumbercamp_events_total counter\n")
	fmt.Fprintf(rw, "lumbercamp_events_total{world=%q,outcome=%q} %d\n", worldID, "fired", t.EventsFired)
	fmt.Fprintf(rw, "lumbercamp_events_total{world=%q,outcome=%q} %d\n", worldID, "dropped", t.EventsDropped)
	fmt.Fprintf(rw, "lumbercamp_events_total{world=%q,outcome=%q} %d\n", worldID, "cancelled", t.EventsCancelled)

	fmt.Fprintf(rw, "# HELP lumbercamp_target_resolutions_total Move targets that had to be displaced.\n")
	fmt.Fprintf(rw, "# TYPE lumbercamp_target_resolutions_total counter\n")
	for _, r := range []placement.Resolution{placement.Spiral, placement.Fallback} {
		fmt.Fprintf(rw, "lumbercamp_target_resolutions_total{world=%q,mode=%q} %d\n", worldID, r.String(), t.Resolved[r])
	}

	fmt.Fprintf(rw, "# HELP lumbercamp_stats_window Rolling window stats.\n")
	fmt.Fprintf(rw, "# TYPE lumbercamp_stats_window gauge\n")
	fmt.Fprintf(rw, "lumbercamp_stats_window{world=%q,metric=%q} %d\n", worldID, "extracted", m.StatsWindow.Extracted)
	fmt.Fprintf(rw, "lumbercamp_stats_window{world=%q,metric=%q} %d\n", worldID, "deposited", m.StatsWindow.Deposited)
	fmt.Fprintf(rw, "lumbercamp_stats_window{world=%q,metric=%q} %d\n", worldID, "trained", m.StatsWindow.Trained)
	fmt.Fprintf(rw, "lumbercamp_stats_window{world=%q,metric=%q} %d\n", worldID, "rejected", m.StatsWindow.Rejected)

	fmt.Fprintf(rw, "# HELP lumbercamp_stats_window_ticks Rolling window size in ticks.\n")
	fmt.Fprintf(rw, "# TYPE lumbercamp_stats_window_ticks gauge\n")
	fmt.Fprintf(rw, "lumbercamp_stats_window_ticks{world=%q} %d\n", worldID, m.StatsWindowTicks)

	active := 0
	if ws.Active {
		active = 1
	}
	fmt.Fprintf(rw, "# HELP lumbercamp_ws_viewer_active Whether a viewer session is attached.\n")
	fmt.Fprintf(rw, "# TYPE lumbercamp_ws_viewer_active gauge\n")
	fmt.Fprintf(rw, "lumbercamp_ws_viewer_active{world=%q} %d\n", worldID, active)

	fmt.Fprintf(rw, "# HELP lumbercamp_ws_sessions_total Viewer sessions accepted.\n")
	fmt.Fprintf(rw, "# TYPE lumbercamp_ws_sessions_total counter\n")
	fmt.Fprintf(rw, "lumbercamp_ws_sessions_total{world=%q} %d\n", worldID, ws.Sessions)

	fmt.Fprintf(rw, "# HELP lumbercamp_ws_rejected_total Viewer messages answered with ERROR.\n")
	fmt.Fprintf(rw, "# TYPE lumbercamp_ws_rejected_total counter\n")
	fmt.Fprintf(rw, "lumbercamp_ws_rejected_total{world=%q} %d\n", worldID, ws.Rejected)

	if idx == nil {
		return
	}
	fmt.Fprintf(rw, "# HELP lumbercamp_index_queue_depth Current index writer queue depth.\n")
	fmt.Fprintf(rw, "# TYPE lumbercamp_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "lumbercamp_index_queue_depth{world=%q} %d\n", worldID, idx.QueueDepth)

	fmt.Fprintf(rw, "# HELP lumbercamp_index_queue_capacity Index writer queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE lumbercamp_index_queue_capacity gauge\n")
	fmt.Fprintf(rw, "lumbercamp_index_queue_capacity{world=%q} %d\n", worldID, idx.QueueCapacity)

	fmt.Fprintf(rw, "# HELP lumbercamp_index_dropped_total Index rows dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE lumbercamp_index_dropped_total counter\n")
	fmt.Fprintf(rw, "lumbercamp_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "tick", idx.DropTickTotal)
	fmt.Fprintf(rw, "lumbercamp_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "audit", idx.DropAuditTotal)
	fmt.Fprintf(rw, "lumbercamp_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "snapshot", idx.DropSnapshotTotal)
}
