package whatsapp_webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/jdelaire/openwa/core"
	"github.com/jdelaire/openwa/core/auth"
	"github.com/jdelaire/openwa/core/model"
	"github.com/jdelaire/openwa/core/policy"
	"github.com/jdelaire/openwa/core/ratelimit"
)

// Dispatcher routes one inbound message to its handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *model.Message) core.Result
}

// Authorizer decides whether an inbound message may be dispatched.
type Authorizer interface {
	Authorize(ctx context.Context, msg *model.Message) error
}

// Receiver is the HTTP endpoint the Cloud API delivers webhooks to. GET
// answers the subscription handshake and POST carries notifications.
type Receiver struct {
	verifyToken string
	verifier    *auth.Verifier
	policy      Authorizer
	limiter     *ratelimit.Limiter
	dispatcher  Dispatcher
	logger      *slog.Logger
}

// New creates a webhook receiver that accepts the handshake for
// verifyToken and hands parsed messages to d.
func New(verifyToken string, d Dispatcher, logger *slog.Logger) *Receiver {
	return &Receiver{
		verifyToken: verifyToken,
		limiter:     ratelimit.New(),
		dispatcher:  d,
		logger:      logger,
	}
}

// WithAppSecret enables X-Hub-Signature-256 verification of POST bodies.
// An empty secret leaves verification off.
func (r *Receiver) WithAppSecret(secret string) *Receiver {
	r.verifier = auth.NewVerifier(secret)
	return r
}

// WithPolicy filters messages before dispatch.
func (r *Receiver) WithPolicy(p Authorizer) *Receiver {
	r.policy = p
	return r
}

// WithLimiter replaces the handshake failure limiter.
func (r *Receiver) WithLimiter(l *ratelimit.Limiter) *Receiver {
	if l != nil {
		r.limiter = l
	}
	return r
}

func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		r.handleVerify(w, req)
	case http.MethodPost:
		r.handleNotification(w, req)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (r *Receiver) handleVerify(w http.ResponseWriter, req *http.Request) {
	host := remoteHost(req)
	if err := r.limiter.Check(host); err != nil {
		r.logger.Warn("webhook verification blocked", "remote", host, "error", err)
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	q := req.URL.Query()
	if q.Get("hub.mode") != "subscribe" || !auth.TokenEqual(q.Get("hub.verify_token"), r.verifyToken) {
		r.limiter.RecordFailure(host)
		r.logger.Warn("webhook verification failed", "remote", host, "mode", q.Get("hub.mode"))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	r.limiter.Reset(host)
	r.logger.Info("webhook verified", "remote", host)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, q.Get("hub.challenge"))
}

func (r *Receiver) handleNotification(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, model.MaxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			r.logger.Warn("webhook payload too large", "limit", tooLarge.Limit)
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		r.logger.Warn("read webhook body", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if r.verifier != nil {
		if err := r.verifier.Verify(body, req.Header.Get(auth.SignatureHeader)); err != nil {
			r.logger.Warn("webhook signature rejected", "remote", remoteHost(req), "error", err)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	msgs, err := model.ParseWebhook(body)
	if err != nil {
		// Acknowledge anyway: a non-2xx makes the platform redeliver the
		// same malformed payload. Messages that did parse still go out.
		r.logger.Error("parse webhook", "error", err, "parsed", len(msgs))
		if len(msgs) == 0 {
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	if r.logger.Enabled(req.Context(), slog.LevelDebug) {
		if statuses, err := model.ParseStatuses(body); err == nil {
			for _, s := range statuses {
				r.logger.Debug("message status", "msg_id", s.ID, "status", s.Status, "recipient", s.RecipientID)
			}
		}
	}

	ctx := req.Context()
	for _, msg := range msgs {
		if !r.authorize(ctx, msg) {
			continue
		}
		r.dispatcher.Dispatch(ctx, msg)
	}

	w.WriteHeader(http.StatusOK)
}

// authorize applies the inbound policy. A failing policy store does not
// drop messages.
func (r *Receiver) authorize(ctx context.Context, msg *model.Message) bool {
	if r.policy == nil {
		return true
	}
	err := r.policy.Authorize(ctx, msg)
	switch {
	case err == nil:
		return true
	case errors.Is(err, policy.ErrUnauthorized):
		r.logger.Warn("message from unauthorized sender", "msg_id", msg.ID, "from", msg.From)
		return false
	case errors.Is(err, policy.ErrStale), errors.Is(err, policy.ErrDuplicate):
		r.logger.Info("message skipped", "msg_id", msg.ID, "reason", err)
		return false
	default:
		r.logger.Error("inbound policy", "msg_id", msg.ID, "error", err)
		return true
	}
}

func remoteHost(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
