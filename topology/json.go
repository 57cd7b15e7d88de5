// json.go implements the Topology JSON loader and the two produced JSON
// views (spec §6): Stats JSON (QueryJSONStats) and Topology dump JSON
// (DumpJSON), in top/flat/rendered modes.
/*
 * Copyright (c) 2024, flowrt authors.
 */
package topology

import (
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"

	"github.com/flowmesh/flowrt/actor"
	"github.com/flowmesh/flowrt/block"
	"github.com/flowmesh/flowrt/cmn/cos"
	"github.com/flowmesh/flowrt/threadpool"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// --- Topology JSON (consumed) -----------------------------------------------

type jsonGlobal struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type jsonThreadPoolArgs struct {
	Name       string  `json:"name"`
	NumThreads int     `json:"numThreads"`
	Priority   float64 `json:"priority"`
	Affinity   []int   `json:"affinity"`
	YieldMode  string  `json:"yieldMode"`
}

type jsonBlock struct {
	ID         string         `json:"id"`
	Path       string         `json:"path"`
	Args       map[string]any `json:"args"`
	Calls      [][]any        `json:"calls"`
	ThreadPool string         `json:"threadPool"`
}

type jsonDoc struct {
	Globals     []jsonGlobal                  `json:"globals"`
	ThreadPools map[string]jsonThreadPoolArgs `json:"threadPools"`
	Blocks      []jsonBlock                   `json:"blocks"`
	Connections [][]string                    `json:"connections"`
}

func yieldModeFromString(s string) threadpool.YieldMode {
	switch s {
	case "HYBRID":
		return threadpool.Hybrid
	case "SPIN":
		return threadpool.Spin
	default:
		return threadpool.Condition
	}
}

// hasCalls is implemented by anything embedding block.Base.
type hasCalls interface {
	Calls() *block.CallRegistry
}

// Loaded is the result of LoadJSON: the constructed pools (keyed by name,
// including "default") and the Topology with every block Add()ed and every
// connection Connect()ed, but not yet committed.
type Loaded struct {
	Topology *Topology
	Pools    map[string]*threadpool.Pool
}

// LoadJSON parses a Topology JSON document (spec §6) against cat, building
// every declared block via its catalog Factory, registering it on a
// freshly-constructed Topology bound to the "default" pool, running its
// post-construction calls, and declaring every connection. It does not call
// Commit - the caller decides when.
func LoadJSON(data []byte, cat Catalog) (*Loaded, error) {
	var doc jsonDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, cos.NewErrDataFormat("$", err.Error())
	}

	pools := map[string]*threadpool.Pool{}
	for name, tpa := range doc.ThreadPools {
		pools[name] = threadpool.New(threadpool.Args{
			Name:         tpa.Name,
			NumThreads:   tpa.NumThreads,
			Priority:     tpa.Priority,
			AffinityMask: tpa.Affinity,
			YieldMode:    yieldModeFromString(tpa.YieldMode),
		})
	}
	defaultPool, ok := pools["default"]
	if !ok {
		defaultPool = threadpool.New(threadpool.Args{Name: "default"})
		pools["default"] = defaultPool
	}

	topo := New(defaultPool)
	ids := map[string]string{} // json-declared id -> block uid

	for i, jb := range doc.Blocks {
		path := jsonPath("blocks", i)
		if jb.ID == "" {
			return nil, cos.NewErrDataFormat(path+".id", "missing block id")
		}
		factory, ok := cat[jb.Path]
		if !ok {
			return nil, cos.NewErrDataFormat(path+".path", "unknown catalog path "+jb.Path)
		}
		blk, err := factory(jb.Args)
		if err != nil {
			return nil, cos.NewErrDataFormat(path+".args", err.Error())
		}
		a := topo.Add(blk)
		if jb.ThreadPool != "" {
			pool, ok := pools[jb.ThreadPool]
			if !ok {
				return nil, cos.NewErrDataFormat(path+".threadPool", "unknown pool "+jb.ThreadPool)
			}
			a.SetPool(pool)
		}
		for ci, call := range jb.Calls {
			callPath := fmt.Sprintf("%s.calls[%d]", path, ci)
			if len(call) == 0 {
				return nil, cos.NewErrDataFormat(callPath, "empty call entry")
			}
			name, ok := call[0].(string)
			if !ok {
				return nil, cos.NewErrDataFormat(callPath+"[0]", "call name must be a string")
			}
			hc, ok := blk.(hasCalls)
			if !ok {
				return nil, cos.NewErrDataFormat(callPath, "block has no registered calls")
			}
			if _, err := hc.Calls().Invoke(name, call[1:]...); err != nil {
				return nil, cos.NewErrDataFormat(callPath, err.Error())
			}
		}
		ids[jb.ID] = blk.UID()
	}

	resolve := func(id string) string {
		if isBoundary(id) {
			return id
		}
		if uid, ok := ids[id]; ok {
			return uid
		}
		return id
	}

	for i, c := range doc.Connections {
		if len(c) != 4 {
			return nil, cos.NewErrDataFormat(jsonPath("connections", i), "expected [src_id, src_port, dst_id, dst_port]")
		}
		topo.Connect(
			Endpoint{BlockUID: resolve(c[0]), Port: c[1]},
			Endpoint{BlockUID: resolve(c[2]), Port: c[3]},
		)
	}

	return &Loaded{Topology: topo, Pools: pools}, nil
}

func jsonPath(field string, index int) string {
	return fmt.Sprintf("$.%s[%d]", field, index)
}

// --- Stats JSON (produced) --------------------------------------------------

type PortStatJSON struct {
	PortName      string `json:"portName"`
	TotalElements uint64 `json:"totalElements"`
}

type BlockStatJSON struct {
	BlockName    string         `json:"blockName"`
	NumWorkCalls uint64         `json:"numWorkCalls"`
	InputStats   []PortStatJSON `json:"inputStats"`
	OutputStats  []PortStatJSON `json:"outputStats"`
}

// QueryJSONStats fans queryWorkStats out to every registered actor in
// parallel and merges the results keyed by uid (spec §4.I).
func (t *Topology) QueryJSONStats() ([]byte, error) {
	t.mu.Lock()
	actors := make(map[string]*actor.BlockActor, len(t.blocks))
	for uid, a := range t.blocks {
		actors[uid] = a
	}
	t.mu.Unlock()

	results := make(map[string]BlockStatJSON, len(actors))
	var mu sync.Mutex
	var wg errgroup.Group
	for uid, a := range actors {
		uid, a := uid, a
		wg.Go(func() error {
			stat := BlockStatJSON{BlockName: uid, NumWorkCalls: a.WorkCalls()}
			for _, s := range a.InputStats() {
				stat.InputStats = append(stat.InputStats, PortStatJSON{PortName: s.Name, TotalElements: s.TotalElements})
			}
			for _, s := range a.OutputStats() {
				stat.OutputStats = append(stat.OutputStats, PortStatJSON{PortName: s.Name, TotalElements: s.TotalElements})
			}
			mu.Lock()
			results[uid] = stat
			mu.Unlock()
			return nil
		})
	}
	_ = wg.Wait()
	return json.Marshal(results)
}

// --- Topology dump JSON (produced) ------------------------------------------

type DumpMode int

const (
	DumpTop DumpMode = iota
	DumpFlat
	DumpRendered
)

type blockDumpJSON struct {
	Name    string   `json:"name"`
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

type connectionDumpJSON struct {
	SrcID   string `json:"srcId"`
	SrcName string `json:"srcName"`
	DstID   string `json:"dstId"`
	DstName string `json:"dstName"`
}

type dumpJSON struct {
	Blocks      map[string]blockDumpJSON `json:"blocks"`
	Connections []connectionDumpJSON     `json:"connections"`
}

// DumpJSON renders mode's view of the topology (spec §4.I "Introspection").
func (t *Topology) DumpJSON(mode DumpMode) ([]byte, error) {
	var flows map[Flow]bool
	switch mode {
	case DumpTop:
		t.mu.Lock()
		flows = make(map[Flow]bool, len(t.flows))
		for f := range t.flows {
			flows[f] = true
		}
		t.mu.Unlock()
	case DumpFlat:
		flows = t.flatten()
	case DumpRendered:
		flows = t.renderBridges(t.flatten())
	default:
		return nil, cos.NewErrInvalidArgument("Topology.DumpJSON", "unknown mode")
	}

	out := dumpJSON{Blocks: map[string]blockDumpJSON{}}
	seen := map[string]bool{}
	addBlock := func(uid string) {
		if uid == "" || seen[uid] || isBoundary(uid) {
			return
		}
		seen[uid] = true
		a := t.actorFor(uid)
		if a == nil {
			return
		}
		blk := a.Block()
		bd := blockDumpJSON{Name: uid}
		for i := 0; i < blk.NumInputs(); i++ {
			bd.Inputs = append(bd.Inputs, blk.Input(i).Name())
		}
		for i := 0; i < blk.NumOutputs(); i++ {
			bd.Outputs = append(bd.Outputs, blk.Output(i).Name())
		}
		out.Blocks[uid] = bd
	}

	for f := range flows {
		addBlock(f.Src.BlockUID)
		addBlock(f.Dst.BlockUID)
		out.Connections = append(out.Connections, connectionDumpJSON{
			SrcID: f.Src.BlockUID, SrcName: f.Src.Port,
			DstID: f.Dst.BlockUID, DstName: f.Dst.Port,
		})
	}

	return json.Marshal(out)
}
