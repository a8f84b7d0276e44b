package routes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"vestake/core/events"
	"vestake/services/indexer"
)

const (
	subscriberBuffer = 64
	writeTimeout     = 5 * time.Second
)

type eventRoutes struct {
	history History
	hub     *Hub
	logger  *slog.Logger
}

func (er *eventRoutes) mount(r chi.Router) {
	r.Get("/", er.list)
	r.Get("/export.{format}", er.export)
	r.Get("/ws", er.stream)
}

func (er *eventRoutes) filter(r *http.Request) (indexer.Filter, error) {
	query := r.URL.Query()
	filter := indexer.Filter{Type: strings.TrimSpace(query.Get("type"))}
	if account := strings.TrimSpace(query.Get("account")); account != "" {
		addr, err := parseAddress("account", account)
		if err != nil {
			return filter, err
		}
		filter.Account = addr.Hex()
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return filter, badRequest(codeBadRequest, "limit must be a positive integer")
		}
		filter.Limit = limit
	}
	return filter, nil
}

func (er *eventRoutes) list(w http.ResponseWriter, r *http.Request) {
	if er.history == nil {
		writeError(w, badRequest(codeUnavailable, "event history is disabled"))
		return
	}
	filter, err := er.filter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := er.history.Query(r.Context(), filter)
	if err != nil {
		er.logger.Error("events: query failed", slog.Any("error", err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": entries})
}

func (er *eventRoutes) export(w http.ResponseWriter, r *http.Request) {
	if er.history == nil {
		writeError(w, badRequest(codeUnavailable, "event history is disabled"))
		return
	}
	filter, err := er.filter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	format := indexer.Format(strings.ToLower(chi.URLParam(r, "format")))
	data, checksum, err := er.history.Export(r.Context(), filter, format)
	if errors.Is(err, indexer.ErrUnknownFormat) {
		writeError(w, badRequest(codeBadRequest, "format must be csv, jsonl or parquet"))
		return
	}
	if err != nil {
		er.logger.Error("events: export failed", slog.String("format", string(format)), slog.Any("error", err))
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"events.%s\"", format))
	w.Header().Set("X-Checksum-SHA256", checksum)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (er *eventRoutes) stream(w http.ResponseWriter, r *http.Request) {
	if er.hub == nil {
		writeError(w, badRequest(codeUnavailable, "event stream is disabled"))
		return
	}
	filter, err := er.filter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	er.hub.serve(w, r, filter)
}

// Hub streams committed event records to websocket subscribers. It
// implements events.Sink.
type Hub struct {
	*events.Broadcaster
	logger  *slog.Logger
	origins []string
}

// NewHub returns a hub accepting websocket upgrades from the given origin
// patterns. An empty list only accepts same-origin requests.
func NewHub(logger *slog.Logger, originPatterns ...string) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		Broadcaster: events.NewBroadcaster(),
		logger:      logger,
		origins:     originPatterns,
	}
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request, filter indexer.Filter) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn("events: websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	sub := h.Subscribe(events.Filter{Type: filter.Type, Account: filter.Account}, subscriberBuffer)
	defer sub.Close()

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Dropped():
			conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
			return
		case record := <-sub.C:
			if err := writeRecord(ctx, conn, record); err != nil {
				return
			}
		}
	}
}

func writeRecord(parent context.Context, conn *websocket.Conn, record events.Record) error {
	ctx, cancel := context.WithTimeout(parent, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, record)
}
