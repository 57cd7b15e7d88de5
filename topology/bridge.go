// bridge.go implements commit() step 3 (spec §4.I): wherever a flattened
// flow crosses a buffer/process domain, splice in a wire.NetworkSink on the
// source side and a wire.NetworkSource on the destination side, caching the
// pair so a repeated commit with the same edge reuses it instead of
// re-dialing. Grounded on the same source as wire/bridge.go
// (original_source/pothos-blocks/network), restored here as the concrete
// "topology/bridge.go" SPEC_FULL §12 calls for.
/*
 * Copyright (c) 2024, flowrt authors.
 */
package topology

import (
	"net"

	"github.com/flowmesh/flowrt/actor"
	"github.com/flowmesh/flowrt/dtype"
	"github.com/flowmesh/flowrt/wire"
)

// bridgePair is one cached domain crossing: a NetworkSink actor living in
// the source's domain and a NetworkSource actor living in the
// destination's, connected by an in-process net.Pipe (the minimal transport
// needed to prove cross-domain commit end to end; a deployment that truly
// spans processes supplies a net.Conn from a real dialer/listener instead -
// the bridge blocks themselves are transport-agnostic).
type bridgePair struct {
	sinkActor   *actor.BlockActor
	sourceActor *actor.BlockActor
	srcPortIdx  int // index of sinkActor's single input
	dstPortIdx  int // index of sourceActor's single output
}

// renderBridges implements step 3: for every flattened flow whose endpoints
// live in different environments, replace it with src->sink and
// source->dst, reusing a cached bridgePair keyed by (srcEnv, dstEnv,
// srcPort). Flows within one environment pass through unchanged.
func (t *Topology) renderBridges(flat map[Flow]bool) map[Flow]bool {
	out := map[Flow]bool{}
	for f := range flat {
		srcActor := t.actorFor(f.Src.BlockUID)
		dstActor := t.actorFor(f.Dst.BlockUID)
		if srcActor == nil || dstActor == nil {
			out[f] = true
			continue
		}
		srcEnv, dstEnv := envOf(srcActor.Block()), envOf(dstActor.Block())
		if srcEnv == dstEnv {
			out[f] = true
			continue
		}

		bp := t.bridgeFor(srcEnv, dstEnv, f.Src.Port)
		out[Flow{Src: f.Src, Dst: Endpoint{BlockUID: bp.sinkActor.UID(), Port: bp.sinkActor.Block().Input(bp.srcPortIdx).Name()}}] = true
		out[Flow{Src: Endpoint{BlockUID: bp.sourceActor.UID(), Port: bp.sourceActor.Block().Output(bp.dstPortIdx).Name()}, Dst: f.Dst}] = true
	}
	return out
}

// bridgeFor returns the cached bridgePair for (srcEnv, dstEnv, srcPort),
// creating and registering it (as two ordinary blocks) on first use.
func (t *Topology) bridgeFor(srcEnv, dstEnv, srcPort string) *bridgePair {
	key := bridgeKey(srcEnv, dstEnv, srcPort)

	t.mu.Lock()
	if bp, ok := t.bridges[key]; ok {
		t.mu.Unlock()
		return bp
	}
	t.mu.Unlock()

	clientConn, serverConn := net.Pipe()
	sink := wire.NewNetworkSink(serverConn, dtype.DType{}, wire.CompressionNone)
	source := wire.NewNetworkSource(clientConn, wire.CompressionNone)

	bp := &bridgePair{
		sinkActor:   t.Add(sink),
		sourceActor: t.Add(source),
		srcPortIdx:  0,
		dstPortIdx:  0,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.bridges[key]; ok {
		return existing
	}
	t.bridges[key] = bp
	return bp
}
