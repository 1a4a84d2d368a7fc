package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func digestWriteString(h hashWriter, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// stateDigest hashes every field that affects future ticks, in a fixed order.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte
	digestWriteU64(h, &tmp, nowTick)
	digestWriteI64(h, &tmp, w.tun.Seed)

	digestWriteF64(h, &tmp, w.home.Pos.X)
	digestWriteF64(h, &tmp, w.home.Pos.Y)
	digestWriteI64(h, &tmp, int64(w.home.WoodStored))
	digestWriteI64(h, &tmp, int64(w.home.WoodSpent))

	for _, id := range w.nodeOrder {
		n := w.nodes[id]
		digestWriteString(h, &tmp, n.ID)
		digestWriteF64(h, &tmp, n.Pos.X)
		digestWriteF64(h, &tmp, n.Pos.Y)
		digestWriteI64(h, &tmp, int64(n.Wood))
		digestWriteF64(h, &tmp, n.Progress)
	}

	for _, wk := range w.sortedWorkers() {
		digestWriteString(h, &tmp, wk.ID)
		digestWriteF64(h, &tmp, wk.Pos.X)
		digestWriteF64(h, &tmp, wk.Pos.Y)
		digestWriteI64(h, &tmp, int64(wk.WoodCarried))
		digestWriteString(h, &tmp, wk.LastNodeID)
		digestWriteU64(h, &tmp, wk.CmdGen)
		digestWriteI64(h, &tmp, int64(wk.approachMisses))
		h.Write([]byte{boolByte(wk.MoveTask != nil), boolByte(wk.HarvestTask != nil)})
		if mt := wk.MoveTask; mt != nil {
			digestWriteString(h, &tmp, mt.TaskID)
			digestWriteString(h, &tmp, string(mt.Purpose))
			digestWriteF64(h, &tmp, mt.Target.X)
			digestWriteF64(h, &tmp, mt.Target.Y)
			digestWriteF64(h, &tmp, mt.StartPos.X)
			digestWriteF64(h, &tmp, mt.StartPos.Y)
			digestWriteU64(h, &tmp, mt.StartedTick)
			digestWriteString(h, &tmp, mt.NodeID)
		}
		if ht := wk.HarvestTask; ht != nil {
			digestWriteString(h, &tmp, ht.TaskID)
			digestWriteString(h, &tmp, ht.NodeID)
			digestWriteU64(h, &tmp, ht.StartedTick)
			digestWriteI64(h, &tmp, int64(ht.Extracted))
		}
	}

	digestWriteString(h, &tmp, w.selection.String())

	for _, e := range w.events.Pending() {
		digestWriteU64(h, &tmp, e.Seq)
		digestWriteU64(h, &tmp, e.FireTick)
		digestWriteString(h, &tmp, string(e.Kind))
		digestWriteString(h, &tmp, e.WorkerID)
		digestWriteString(h, &tmp, e.NodeID)
		digestWriteU64(h, &tmp, e.Gen)
	}

	digestWriteU64(h, &tmp, w.nextWorkerNum)
	digestWriteU64(h, &tmp, w.nextTaskNum)
	digestWriteU64(h, &tmp, w.events.NextSeq())

	return hex.EncodeToString(h.Sum(nil))
}
