package server

import (
	"net/http"

	"gorm.io/gorm"

	"lucky-draw/internal/draw"
)

// Server is the JSON request layer over the draw engine. It carries no draw
// logic of its own: callers are assumed to be authenticated and authorized
// upstream, and the acting user arrives as the X-Acting-User header for audit
// attribution only.
type Server struct {
	db    *gorm.DB
	draws *draw.Service
}

func New(conn *gorm.DB, draws *draw.Service) *Server {
	return &Server{db: conn, draws: draws}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/draw-batches/preview", s.handlePreview)
	mux.HandleFunc("GET /api/draw-batches/{id}", s.handleGetBatch)
	mux.HandleFunc("POST /api/draw-batches/{id}/confirm", s.handleConfirm)
	mux.HandleFunc("POST /api/draw-batches/{id}/void", s.handleVoid)
	mux.HandleFunc("POST /api/winners/{id}/revoke", s.handleRevoke)
	mux.HandleFunc("GET /api/projects/{id}/winners", s.handleListWinners)
	mux.HandleFunc("POST /api/projects/{id}/reset-winners", s.handleResetWinners)
	mux.HandleFunc("POST /api/projects/{id}/members/bulk", s.handleBulkUpsertMembers)
	mux.HandleFunc("POST /api/projects/{id}/members/clear", s.handleClearMembers)
	return mux
}
