/*
 * Copyright (c) 2024, flowrt authors.
 */
package wire_test

import (
	"net"
	"testing"
	"time"

	"github.com/flowmesh/flowrt/dtype"
	"github.com/flowmesh/flowrt/internal/testblocks"
	"github.com/flowmesh/flowrt/label"
	"github.com/flowmesh/flowrt/wire"
)

// TestNetworkSinkSourceRoundTrip drives a FeederSource through a NetworkSink,
// across a net.Pipe, through a NetworkSource, into a CollectorSink, and
// checks the buffer, labels, and messages all survive the trip (spec §8
// scenario 6 "cross-domain bridge").
func TestNetworkSinkSourceRoundTrip(t *testing.T) {
	dt := dtype.MustNew("uint8")
	buffers := [][]byte{{1, 2, 3, 4, 5}}
	labels := []label.Label{label.New("mark", nil, 2, 1)}
	messages := []label.Message{label.NewMessage("hello")}

	feeder := testblocks.NewFeederSource[byte](dt, buffers, labels, messages)
	collector := testblocks.NewCollectorSink[byte]()

	clientConn, serverConn := net.Pipe()
	sink := wire.NewNetworkSink(serverConn, dt, wire.CompressionLZ4)
	source := wire.NewNetworkSource(clientConn, wire.CompressionLZ4)

	feeder.Output(0).Subscribe(sink.Input(0))
	source.Output(0).Subscribe(collector.Input(0))

	if err := feeder.Activate(); err != nil {
		t.Fatalf("feeder.Activate: %v", err)
	}
	if err := sink.Activate(); err != nil {
		t.Fatalf("sink.Activate: %v", err)
	}
	if err := source.Activate(); err != nil {
		t.Fatalf("source.Activate: %v", err)
	}
	if err := collector.Activate(); err != nil {
		t.Fatalf("collector.Activate: %v", err)
	}
	defer source.Deactivate()
	defer sink.Deactivate()

	if err := feeder.Work(); err != nil {
		t.Fatalf("feeder.Work: %v", err)
	}
	if err := sink.Work(); err != nil {
		t.Fatalf("sink.Work: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := collector.Work(); err != nil {
			t.Fatalf("collector.Work: %v", err)
		}
		if len(collector.CollectedBuffer()) == len(buffers[0]) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for buffer to arrive over the bridge")
		}
		time.Sleep(5 * time.Millisecond)
	}

	gotBuf := collector.CollectedBuffer()
	if len(gotBuf) != len(buffers[0]) {
		t.Fatalf("collected buffer length = %d, want %d", len(gotBuf), len(buffers[0]))
	}
	for i, want := range buffers[0] {
		if gotBuf[i] != want {
			t.Fatalf("collected buffer[%d] = %d, want %d", i, gotBuf[i], want)
		}
	}

	gotMsgs := collector.CollectedMessages()
	if len(gotMsgs) != 1 || gotMsgs[0].Value != "hello" {
		t.Fatalf("collected messages = %v, want [hello]", gotMsgs)
	}

	gotLabels := collector.CollectedLabels()
	if len(gotLabels) != 1 || gotLabels[0].ID != "mark" || gotLabels[0].Index != 2 {
		t.Fatalf("collected labels = %v, want one label id=mark index=2", gotLabels)
	}
}
