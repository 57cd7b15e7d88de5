// http.go serves the JSON introspection surface (spec §6 "produced" JSON)
// over fasthttp: GET /stats for QueryJSONStats, GET /dump?mode=top|flat|
// rendered for DumpJSON.
/*
 * Copyright (c) 2024, flowrt authors.
 */
package topology

import (
	"github.com/valyala/fasthttp"

	"github.com/flowmesh/flowrt/cmn/nlog"
)

// Server wraps a fasthttp listener exposing t's stats/dump endpoints.
type Server struct {
	t    *Topology
	srv  *fasthttp.Server
}

func NewServer(t *Topology) *Server {
	s := &Server{t: t}
	s.srv = &fasthttp.Server{Handler: s.handle, Name: "flowrt-topology"}
	return s
}

func (s *Server) ListenAndServe(addr string) error {
	nlog.Infof("topology: introspection server listening on %s", addr)
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Shutdown() error { return s.srv.Shutdown() }

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/stats":
		s.serveStats(ctx)
	case "/dump":
		s.serveDump(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (s *Server) serveStats(ctx *fasthttp.RequestCtx) {
	body, err := s.t.QueryJSONStats()
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(err.Error())
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func (s *Server) serveDump(ctx *fasthttp.RequestCtx) {
	mode := DumpTop
	switch string(ctx.QueryArgs().Peek("mode")) {
	case "flat":
		mode = DumpFlat
	case "rendered":
		mode = DumpRendered
	}
	body, err := s.t.DumpJSON(mode)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(err.Error())
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
