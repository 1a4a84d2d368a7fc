package main

import (
	"errors"
	"fmt"

	"lumbercamp.ai/internal/persistence/archive"
	persistlog "lumbercamp.ai/internal/persistence/log"
	"lumbercamp.ai/internal/sim/world"
)

var errStop = errors.New("stop")

type replayResult struct {
	Meta     archive.RunMeta
	Checked  uint64
	Commands int
	LastTick uint64
	Digests  map[uint64]string // only ticks named in keep
}

// replayRun rebuilds the run's world from run.json and re-steps it with the
// recorded commands, comparing every digest from verifyFrom on. toTick 0 means
// the whole log.
func replayRun(runDir string, verifyFrom, toTick uint64, keep map[uint64]bool) (replayResult, error) {
	res := replayResult{Digests: map[uint64]string{}}
	meta, err := archive.ReadRunMeta(runDir)
	if err != nil {
		return res, fmt.Errorf("run meta: %w", err)
	}
	res.Meta = meta

	w, err := world.New(world.WorldConfig{ID: meta.WorldID, Tuning: meta.Tuning})
	if err != nil {
		return res, fmt.Errorf("world: %w", err)
	}

	err = persistlog.EachTick(runDir, func(entry world.TickLogEntry) error {
		if toTick != 0 && entry.Tick > toTick {
			return errStop
		}
		if entry.Tick != w.CurrentTick() {
			return fmt.Errorf("tick mismatch: want=%d got=%d", w.CurrentTick(), entry.Tick)
		}

		cmds := make([]world.CommandEnvelope, 0, len(entry.Commands))
		for _, rc := range entry.Commands {
			cmds = append(cmds, world.CommandEnvelope{Source: rc.Source, Ref: rc.Ref, Cmd: rc.Command})
		}
		res.Commands += len(cmds)

		tick, gotDigest := w.StepOnce(cmds)
		if tick != entry.Tick {
			return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d", tick, entry.Tick)
		}
		res.LastTick = tick
		if keep[tick] {
			res.Digests[tick] = gotDigest
		}
		if tick >= verifyFrom {
			res.Checked++
			if gotDigest != entry.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, gotDigest, entry.Digest)
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return res, err
	}
	return res, nil
}
