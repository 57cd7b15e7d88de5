/*
 * Copyright (c) 2024, flowrt authors.
 */
package topology_test

import (
	"testing"
	"time"

	"github.com/flowmesh/flowrt/dtype"
	"github.com/flowmesh/flowrt/internal/testblocks"
	"github.com/flowmesh/flowrt/label"
	"github.com/flowmesh/flowrt/threadpool"
	"github.com/flowmesh/flowrt/topology"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestFeederToCollector exercises spec §8 scenario 1: a single source
// connected to a single sink propagates its buffer, labels, and messages
// end to end through a committed Topology.
func TestFeederToCollector(t *testing.T) {
	dt := dtype.MustNew("uint8")
	feeder := testblocks.NewFeederSource[byte](dt, [][]byte{{1, 2, 3, 4}}, []label.Label{label.New("start", nil, 0, 1)}, []label.Message{label.NewMessage(7)})
	collector := testblocks.NewCollectorSink[byte]()

	pool := threadpool.New(threadpool.Args{Name: "topo-test", NumThreads: 2})
	defer pool.Close()

	topo := topology.New(pool)
	src := topo.Add(feeder)
	dst := topo.Add(collector)

	topo.Connect(
		topology.Endpoint{BlockUID: src.UID(), Port: "out"},
		topology.Endpoint{BlockUID: dst.UID(), Port: "in"},
	)

	if err := topo.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return len(collector.CollectedBuffer()) == 4 })

	got := collector.CollectedBuffer()
	for i, want := range []byte{1, 2, 3, 4} {
		if got[i] != want {
			t.Fatalf("collected[%d] = %d, want %d", i, got[i], want)
		}
	}
	if msgs := collector.CollectedMessages(); len(msgs) != 1 || msgs[0].Value != 7 {
		t.Fatalf("collected messages = %v, want [7]", msgs)
	}
	if labels := collector.CollectedLabels(); len(labels) != 1 || labels[0].ID != "start" {
		t.Fatalf("collected labels = %v, want one label id=start", labels)
	}
}

// TestCommitIsIdempotent checks the round-trip property from spec §8: a
// second Commit() with no intervening Connect/Disconnect leaves every
// subscription exactly as it was (no double-subscribe, no error).
func TestCommitIsIdempotent(t *testing.T) {
	dt := dtype.MustNew("uint8")
	feeder := testblocks.NewFeederSource[byte](dt, nil, nil, nil)
	collector := testblocks.NewCollectorSink[byte]()

	pool := threadpool.New(threadpool.Args{Name: "topo-idem", NumThreads: 1})
	defer pool.Close()

	topo := topology.New(pool)
	src := topo.Add(feeder)
	dst := topo.Add(collector)
	topo.Connect(
		topology.Endpoint{BlockUID: src.UID(), Port: "out"},
		topology.Endpoint{BlockUID: dst.UID(), Port: "in"},
	)

	if err := topo.Commit(); err != nil {
		t.Fatalf("first Commit: %v", err)
	}
	if !src.HasSourceEdge(0, dst.UID(), "in") {
		t.Fatal("expected source edge after first commit")
	}
	if err := topo.Commit(); err != nil {
		t.Fatalf("second Commit: %v", err)
	}
	if !src.HasSourceEdge(0, dst.UID(), "in") {
		t.Fatal("expected source edge to survive an idempotent second commit")
	}
}

// TestDisconnectAllThenCommitRemovesEdges checks that tearing down every flow
// and recommitting leaves both actors with no applied edges.
func TestDisconnectAllThenCommitRemovesEdges(t *testing.T) {
	dt := dtype.MustNew("uint8")
	feeder := testblocks.NewFeederSource[byte](dt, nil, nil, nil)
	collector := testblocks.NewCollectorSink[byte]()

	pool := threadpool.New(threadpool.Args{Name: "topo-teardown", NumThreads: 1})
	defer pool.Close()

	topo := topology.New(pool)
	src := topo.Add(feeder)
	dst := topo.Add(collector)
	topo.Connect(
		topology.Endpoint{BlockUID: src.UID(), Port: "out"},
		topology.Endpoint{BlockUID: dst.UID(), Port: "in"},
	)
	if err := topo.Commit(); err != nil {
		t.Fatalf("first Commit: %v", err)
	}

	topo.DisconnectAll()
	if err := topo.Commit(); err != nil {
		t.Fatalf("teardown Commit: %v", err)
	}

	if src.HasSourceEdge(0, dst.UID(), "in") {
		t.Fatal("expected source edge to be removed after teardown commit")
	}
	if dst.HasDestEdge(0, src.UID(), "out") {
		t.Fatal("expected dest edge to be removed after teardown commit")
	}
}

// TestDumpJSONReportsConnections checks the produced dump JSON surfaces the
// committed connection (spec §6 dump JSON).
func TestDumpJSONReportsConnections(t *testing.T) {
	dt := dtype.MustNew("uint8")
	feeder := testblocks.NewFeederSource[byte](dt, nil, nil, nil)
	collector := testblocks.NewCollectorSink[byte]()

	pool := threadpool.New(threadpool.Args{Name: "topo-dump", NumThreads: 1})
	defer pool.Close()

	topo := topology.New(pool)
	src := topo.Add(feeder)
	dst := topo.Add(collector)
	topo.Connect(
		topology.Endpoint{BlockUID: src.UID(), Port: "out"},
		topology.Endpoint{BlockUID: dst.UID(), Port: "in"},
	)
	if err := topo.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	body, err := topo.DumpJSON(topology.DumpTop)
	if err != nil {
		t.Fatalf("DumpJSON: %v", err)
	}
	if len(body) == 0 {
		t.Fatal("expected non-empty dump JSON")
	}
}

// TestQueryJSONStatsCoversEveryBlock checks the produced stats JSON has an
// entry for every registered block (spec §6 stats JSON).
func TestQueryJSONStatsCoversEveryBlock(t *testing.T) {
	dt := dtype.MustNew("uint8")
	feeder := testblocks.NewFeederSource[byte](dt, [][]byte{{1}}, nil, nil)
	collector := testblocks.NewCollectorSink[byte]()

	pool := threadpool.New(threadpool.Args{Name: "topo-stats", NumThreads: 1})
	defer pool.Close()

	topo := topology.New(pool)
	src := topo.Add(feeder)
	dst := topo.Add(collector)
	topo.Connect(
		topology.Endpoint{BlockUID: src.UID(), Port: "out"},
		topology.Endpoint{BlockUID: dst.UID(), Port: "in"},
	)
	if err := topo.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return len(collector.CollectedBuffer()) == 1 })

	body, err := topo.QueryJSONStats()
	if err != nil {
		t.Fatalf("QueryJSONStats: %v", err)
	}
	if len(body) == 0 {
		t.Fatal("expected non-empty stats JSON")
	}
}
