package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/kenneth/msl/internal/audit"
	"github.com/kenneth/msl/internal/metrics"
	"github.com/kenneth/msl/internal/msl"
	"github.com/sirupsen/logrus"
)

// Handler exposes the MSL receive pipeline over HTTP for demo and
// integration-testing purposes. Every inbound connection frame is run
// through msl.NewMessageInputStream and the decrypted application data
// is streamed back to the caller.
type Handler struct {
	mctx    *msl.Context
	logger  *logrus.Logger
	metrics *metrics.Metrics
	audit   audit.Logger
}

// NewHandler creates a new API handler.
func NewHandler(mctx *msl.Context, logger *logrus.Logger, m *metrics.Metrics, a audit.Logger) *Handler {
	return &Handler{mctx: mctx, logger: logger, metrics: m, audit: a}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/ready", h.handleReady).Methods("GET")
	r.HandleFunc("/live", h.handleLive).Methods("GET")
	r.Handle("/metrics", h.metrics.Handler()).Methods("GET")

	r.HandleFunc("/v1/messages", h.handleReceive).Methods("POST")
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	metrics.HealthHandler()(w, r)
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	metrics.ReadinessHandler(nil)(w, r)
}

func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	metrics.LivenessHandler()(w, r)
}

// handleReceive takes a single MSL-framed message off the request body,
// runs it through the full receive pipeline, collects the decrypted
// application payload, and writes it back as the response body once the
// message has been read to its end. One request carries
// exactly one message; there is no support here for keeping a stream
// open across requests the way a native MSL transport would.
func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	stream, err := msl.NewMessageInputStream(ctx, h.mctx, r.Body, nil)
	if err != nil {
		h.rejectAndRespond(ctx, w, err, start)
		return
	}
	defer stream.Close()

	if err := stream.IsReady(ctx); err != nil {
		h.rejectAndRespond(ctx, w, err, start)
		return
	}

	var plaintext []byte
	for {
		chunk, err := stream.Read(ctx, -1)
		if err != nil {
			h.rejectAndRespond(ctx, w, err, start)
			return
		}
		if len(chunk) == 0 {
			break
		}
		plaintext = append(plaintext, chunk...)
	}

	duration := time.Since(start)
	identity := stream.GetIdentity()
	scheme := schemeOf(stream)

	h.metrics.RecordMessage(ctx, scheme, "accepted", duration, int64(len(plaintext)))
	if h.audit != nil {
		h.audit.LogMessageAccepted(messageIDOf(stream), identity, scheme, 0, duration, map[string]interface{}{
			"bytes": len(plaintext),
		})
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(plaintext)
}

func messageIDOf(stream *msl.MessageInputStream) int64 {
	if header := stream.GetMessageHeader(); header != nil {
		return header.MessageID
	}
	return 0
}

func schemeOf(stream *msl.MessageInputStream) string {
	header := stream.GetMessageHeader()
	if header == nil || header.EntityAuthData == nil {
		return ""
	}
	return header.EntityAuthData.Scheme
}

// rejectAndRespond taxonomizes a pipeline error, records it, and writes
// the corresponding HTTP status to the caller.
func (h *Handler) rejectAndRespond(ctx context.Context, w http.ResponseWriter, err error, start time.Time) {
	duration := time.Since(start)

	var mslErr *msl.Error
	kind := msl.KindInternalException
	identity := ""
	var msgID int64
	if errors.As(err, &mslErr) {
		kind = mslErr.Kind
		identity = mslErr.Identity
		if mslErr.MessageID != nil {
			msgID = *mslErr.MessageID
		}
	}

	result := "rejected"
	if kind == msl.KindMessageReplayed || kind == msl.KindMessageReplayedUnrecoverable {
		result = "replayed"
	}
	h.metrics.RecordMessage(ctx, "", result, duration, 0)
	if h.audit != nil {
		if result == "replayed" {
			h.audit.LogReplayRejected(msgID, identity, duration)
		} else {
			h.audit.LogMessageRejected(msgID, identity, string(kind), err, duration, nil)
		}
	}

	h.logger.WithError(err).WithField("kind", kind).Warn("message rejected")
	http.Error(w, err.Error(), kind.HTTPStatus())
}
