package contentstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
)

// Gateway serves GET /content/{cid} from a Store.
type Gateway struct {
	store  Store
	logger *slog.Logger
}

func NewGateway(store Store) *Gateway {
	return &Gateway{store: store, logger: slog.Default().With("component", "content-gateway")}
}

// Register mounts the gateway on mux.
func (g *Gateway) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /content/{cid}", g.handleGet)
}

func (g *Gateway) handleGet(w http.ResponseWriter, r *http.Request) {
	cid := CID(r.PathValue("cid"))
	if _, err := cid.Digest(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	etag := strconv.Quote(string(cid))
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	data, err := g.store.Get(r.Context(), cid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "content not found", http.StatusNotFound)
			return
		}
		g.logger.ErrorContext(r.Context(), "content read failed", "cid", cid, "error", err)
		http.Error(w, "content store unavailable", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", contentType(data))
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func contentType(data []byte) string {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return "application/json"
	}
	return http.DetectContentType(data)
}
