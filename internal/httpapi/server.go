// Package httpapi is the admin metrics read path (§6/§7): a gorilla/mux
// router serving GET /rest/metrics/messages/application/{id}, plus the
// health/readyz/metrics endpoints every binary in this repo exposes.
package httpapi

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	Mux *mux.Router
}

func New() *Server {
	s := &Server{Mux: mux.NewRouter()}
	s.Mux.Handle("/metrics", promhttp.Handler())
	return s
}
