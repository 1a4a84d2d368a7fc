// Package console turns typed lines such as "harvest w2 n1" or "move 120 40"
// into camp commands. Verbs and entity ids tolerate small typos.
package console

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"lumbercamp.ai/internal/protocol"
)

// Context is what the parser knows about the camp when a line is typed.
type Context struct {
	// Selected is the selected worker id, used when a line names none.
	Selected string
	Workers  []string
	Nodes    []string
}

// Result is a parsed line. Help is set for "help" and carries no command.
type Result struct {
	Verb    string
	Command protocol.Command
	Help    bool
	// Corrected is true when a verb or id was matched by edit distance.
	Corrected bool
}

var (
	ErrEmpty       = errors.New("empty command")
	ErrUnknownVerb = errors.New("unknown command")
	ErrNoWorker    = errors.New("no worker selected")
	ErrBadPoint    = errors.New("expected two numbers")
	ErrUnknownID   = errors.New("unknown id")
)

type verbDef struct {
	canonical string
	aliases   []string
	usage     string
}

var verbs = []verbDef{
	{canonical: "select", aliases: []string{"sel", "pick", "choose"}, usage: "select <worker|home|none>"},
	{canonical: "move", aliases: []string{"go", "walk", "mv"}, usage: "move [worker] <x> <y>"},
	{canonical: "harvest", aliases: []string{"chop", "cut", "gather", "work"}, usage: "harvest [worker] [node]"},
	{canonical: "deposit", aliases: []string{"unload", "drop", "return", "home"}, usage: "deposit [worker]"},
	{canonical: "train", aliases: []string{"spawn", "recruit", "hire"}, usage: "train"},
	{canonical: "at", aliases: []string{"click", "here"}, usage: "at <x> <y>"},
	{canonical: "help", aliases: []string{"h", "?"}, usage: "help"},
}

// Usage lists one line per verb.
func Usage() []string {
	out := make([]string, 0, len(verbs))
	for _, v := range verbs {
		out = append(out, v.usage)
	}
	return out
}

func Parse(ctx Context, line string) (Result, error) {
	tokens := tokenise(line)
	if len(tokens) == 0 {
		return Result{}, ErrEmpty
	}
	verb, fuzzy, err := matchVerb(tokens[0])
	if err != nil {
		return Result{}, err
	}
	res := Result{Verb: verb, Corrected: fuzzy}
	args := tokens[1:]

	switch verb {
	case "help":
		res.Help = true
		return res, nil

	case "train":
		res.Command = protocol.Command{Kind: protocol.CmdTrain}
		return res, nil

	case "select":
		if len(args) == 0 {
			return res, fmt.Errorf("select: %w", ErrUnknownID)
		}
		switch args[0] {
		case "none", "nothing", "clear":
			res.Command = protocol.Command{Kind: protocol.CmdSelect}
			return res, nil
		case protocol.EntityHome, "base":
			res.Command = protocol.Command{Kind: protocol.CmdSelect, Entity: protocol.EntityHome}
			return res, nil
		}
		id, fuzzy, ok := matchID(args[0], ctx.Workers)
		if !ok {
			return res, fmt.Errorf("select %s: %w", args[0], ErrUnknownID)
		}
		res.Corrected = res.Corrected || fuzzy
		res.Command = protocol.Command{Kind: protocol.CmdSelect, Entity: id}
		return res, nil

	case "at":
		p, err := parsePoint(args)
		if err != nil {
			return res, fmt.Errorf("at: %w", err)
		}
		res.Command = protocol.Command{Kind: protocol.CmdCommandAt, Target: &p}
		return res, nil
	}

	// The remaining verbs act on a worker: named first, or the selection.
	worker := ctx.Selected
	if len(args) > 0 && !isNumber(args[0]) && !hasID(args[0], ctx.Nodes) {
		if id, fuzzy, ok := matchID(args[0], ctx.Workers); ok {
			worker = id
			res.Corrected = res.Corrected || fuzzy
			args = args[1:]
		}
	}
	if worker == "" {
		return res, fmt.Errorf("%s: %w", verb, ErrNoWorker)
	}

	switch verb {
	case "move":
		p, err := parsePoint(args)
		if err != nil {
			return res, fmt.Errorf("move: %w", err)
		}
		res.Command = protocol.Command{Kind: protocol.CmdMove, WorkerID: worker, Target: &p}
	case "harvest":
		cmd := protocol.Command{Kind: protocol.CmdHarvest, WorkerID: worker}
		if len(args) > 0 {
			id, fuzzy, ok := matchID(args[0], ctx.Nodes)
			if !ok {
				return res, fmt.Errorf("harvest %s: %w", args[0], ErrUnknownID)
			}
			res.Corrected = res.Corrected || fuzzy
			cmd.NodeID = id
		}
		res.Command = cmd
	case "deposit":
		res.Command = protocol.Command{Kind: protocol.CmdDeposit, WorkerID: worker}
	}
	return res, nil
}

func tokenise(line string) []string {
	line = strings.ToLower(strings.TrimSpace(line))
	line = strings.TrimPrefix(line, ":")
	line = strings.NewReplacer(",", " ", "(", " ", ")", " ").Replace(line)
	return strings.Fields(line)
}

type verbCandidate struct {
	canonical string
	dist      int
}

func matchVerb(tok string) (verb string, fuzzy bool, err error) {
	for _, v := range verbs {
		if tok == v.canonical {
			return v.canonical, false, nil
		}
		for _, a := range v.aliases {
			if tok == a {
				return v.canonical, false, nil
			}
		}
	}
	if len(tok) < 3 {
		return "", false, fmt.Errorf("%q: %w", tok, ErrUnknownVerb)
	}
	var cands []verbCandidate
	for _, v := range verbs {
		for _, name := range append([]string{v.canonical}, v.aliases...) {
			if len(name) < 3 {
				continue
			}
			d := levenshtein.ComputeDistance(tok, name)
			if d <= distanceLimit(len(name)) {
				cands = append(cands, verbCandidate{canonical: v.canonical, dist: d})
			}
		}
	}
	if len(cands) == 0 {
		return "", false, fmt.Errorf("%q: %w", tok, ErrUnknownVerb)
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	if len(cands) > 1 && cands[1].dist == cands[0].dist && cands[1].canonical != cands[0].canonical {
		return "", false, fmt.Errorf("%q is ambiguous between %s and %s: %w", tok, cands[0].canonical, cands[1].canonical, ErrUnknownVerb)
	}
	return cands[0].canonical, true, nil
}

// matchID finds tok among ids ignoring case, then among ids of the same
// length within edit distance 1.
func matchID(tok string, ids []string) (id string, fuzzy bool, ok bool) {
	for _, id := range ids {
		if strings.EqualFold(tok, id) {
			return id, false, true
		}
	}
	best, bestD, tie := "", 2, false
	for _, id := range ids {
		if len(id) != len(tok) {
			continue
		}
		d := levenshtein.ComputeDistance(tok, strings.ToLower(id))
		switch {
		case d < bestD:
			best, bestD, tie = id, d, false
		case d == bestD:
			tie = true
		}
	}
	if best == "" || tie {
		return "", false, false
	}
	return best, true, true
}

func hasID(tok string, ids []string) bool {
	for _, id := range ids {
		if strings.EqualFold(tok, id) {
			return true
		}
	}
	return false
}

func distanceLimit(length int) int {
	switch {
	case length <= 4:
		return 1
	case length <= 8:
		return 2
	default:
		return 3
	}
}

func parsePoint(args []string) ([2]float64, error) {
	if len(args) != 2 {
		return [2]float64{}, ErrBadPoint
	}
	var p [2]float64
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return [2]float64{}, ErrBadPoint
		}
		p[i] = f
	}
	return p, nil
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
