package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/justeat/JustSupport/internal/pkg/httputil"
	"github.com/justeat/JustSupport/internal/pkg/logger"
)

// RunFunc starts one ingestion run and returns a summary for the response.
type RunFunc func(ctx context.Context) (any, error)

// ErrUntrustedSubscription is returned for a subscription confirmation
// that does not come from the configured SNS topic.
var ErrUntrustedSubscription = errors.New("trigger: untrusted subscription confirmation")

// Handler receives completion events over HTTP (directly or as an SNS
// HTTPS subscription) and exposes a manual ingestion endpoint.
type Handler struct {
	propagate HandlerFunc
	ingest    RunFunc
	topicARN  string
	client    *http.Client
}

// NewHandler builds the receiver. Subscription confirmations are only
// accepted for topicARN; an empty topicARN refuses them all.
func NewHandler(propagate HandlerFunc, ingest RunFunc, topicARN string) *Handler {
	return &Handler{
		propagate: propagate,
		ingest:    ingest,
		topicARN:  topicARN,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/trigger", h.HandleTrigger)
	r.Post("/run/ingest", h.HandleIngest)
	r.Get("/health", h.HandleHealth)
	return r
}

// HandleTrigger runs propagation for a completion event.
func (h *Handler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httputil.BadRequest(w, "unreadable body")
		return
	}

	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Type == snsSubscriptionConfirmation {
		h.confirmSubscription(w, r, env)
		return
	}

	evt, err := Decode(body)
	if err != nil {
		if errors.Is(err, ErrUnknownEvent) {
			httputil.Error(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		httputil.BadRequest(w, err.Error())
		return
	}

	// SNS gives up on slow endpoints; the run continues regardless
	if err := h.propagate(context.WithoutCancel(r.Context()), evt); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "propagated", "run_id": evt.RunID})
}

func (h *Handler) confirmSubscription(w http.ResponseWriter, r *http.Request, env snsEnvelope) {
	target, err := h.subscribeURL(env)
	if err != nil {
		logger.Warn("refusing SNS subscription", "topic", env.TopicArn, "error", err)
		httputil.Error(w, http.StatusForbidden, err.Error())
		return
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		httputil.BadRequest(w, "invalid SubscribeURL")
		return
	}
	resp, err := h.client.Do(req)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	resp.Body.Close()
	logger.Info("SNS subscription confirmed", "topic", env.TopicArn, "status", resp.StatusCode)
	httputil.OK(w, map[string]string{"status": "confirmed"})
}

// subscribeURL checks that the confirmation is for the configured topic and
// points at the SNS endpoint of the topic's region.
func (h *Handler) subscribeURL(env snsEnvelope) (*url.URL, error) {
	if h.topicARN == "" || env.TopicArn != h.topicARN {
		return nil, fmt.Errorf("%w: topic %q", ErrUntrustedSubscription, env.TopicArn)
	}
	// arn:aws:sns:<region>:<account>:<name>
	parts := strings.Split(h.topicARN, ":")
	if len(parts) < 6 || parts[3] == "" {
		return nil, fmt.Errorf("%w: malformed topic arn", ErrUntrustedSubscription)
	}
	u, err := url.Parse(env.SubscribeURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUntrustedSubscription, err)
	}
	if u.Scheme != "https" || u.Host != "sns."+parts[3]+".amazonaws.com" {
		return nil, fmt.Errorf("%w: host %q", ErrUntrustedSubscription, u.Host)
	}
	if u.Query().Get("Action") != "ConfirmSubscription" || u.Query().Get("TopicArn") != h.topicARN {
		return nil, fmt.Errorf("%w: not a confirmation for %s", ErrUntrustedSubscription, h.topicARN)
	}
	return u, nil
}

// HandleIngest runs one ingestion synchronously.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if h.ingest == nil {
		httputil.NotFound(w, "ingestion is not enabled on this receiver")
		return
	}
	summary, err := h.ingest(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, summary)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}
