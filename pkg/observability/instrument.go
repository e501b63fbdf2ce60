package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/otherjamesbrown/documind-cli/client"
	dmerrors "github.com/otherjamesbrown/documind-cli/pkg/errors"
	"github.com/otherjamesbrown/documind-cli/pkg/seek"
	"github.com/otherjamesbrown/documind-cli/pkg/session"
	"github.com/otherjamesbrown/documind-cli/pkg/timeref"
)

// Backend wraps a client.Backend with spans and metrics.
type Backend struct {
	next    client.Backend
	metrics *Metrics
	tracer  *Tracer
}

// Instrument wraps next. Either metrics or tracer may be nil.
func Instrument(next client.Backend, metrics *Metrics, tracer *Tracer) *Backend {
	if tracer == nil {
		tracer = NewTracer()
	}
	return &Backend{next: next, metrics: metrics, tracer: tracer}
}

// Upload calls the wrapped Upload inside a documind.upload span.
func (b *Backend) Upload(ctx context.Context, req *client.UploadRequest) (*client.UploadResult, error) {
	kind := string(session.InferContentKind(req.FileName))
	ctx, span := b.tracer.StartUploadSpan(ctx, req.FileName, kind)
	defer span.End()

	start := time.Now()
	res, err := b.next.Upload(ctx, req)
	b.observe(client.OpUpload, start)

	result := finish(NewSpanHelper(span), err)
	if b.metrics != nil {
		b.metrics.RecordUpload(kind, result)
	}
	return res, err
}

// Ask calls the wrapped Ask inside a documind.ask span.
func (b *Backend) Ask(ctx context.Context, req *client.AskRequest) (*client.AskResult, error) {
	ctx, span := b.tracer.StartAskSpan(ctx)
	defer span.End()

	start := time.Now()
	res, err := b.next.Ask(ctx, req)
	b.observe(client.OpAsk, start)

	helper := NewSpanHelper(span)
	result := finish(helper, err)
	if err == nil {
		helper.SetAttributes(attribute.Int(AttrAnswerRefs, len(timeref.References(res.Answer))))
	}
	if b.metrics != nil {
		b.metrics.RecordQuestion(result)
	}
	return res, err
}

// Ping calls the wrapped Ping.
func (b *Backend) Ping(ctx context.Context) error {
	return b.next.Ping(ctx)
}

// Close closes the wrapped backend.
func (b *Backend) Close() error {
	return b.next.Close()
}

func (b *Backend) observe(op string, start time.Time) {
	if b.metrics != nil {
		b.metrics.RecordLatency(op, time.Since(start).Seconds())
	}
}

// finish sets the span status and returns the result label.
func finish(h *SpanHelper, err error) string {
	if err == nil {
		h.SetSuccess()
		return ResultSuccess
	}
	ce := dmerrors.ClassifyError(err, "")
	h.SetError(err, string(ce.Code), dmerrors.IsRetryable(ce.Code))
	return string(ce.Code)
}

// ObserveSeeks counts and traces every command published on sub. The
// returned function stops observing.
func ObserveSeeks(sub seek.Subscriber, metrics *Metrics, tracer *Tracer) func() {
	if tracer == nil {
		tracer = NewTracer()
	}
	return sub.Subscribe(func(cmd seek.Command) {
		_, span := tracer.StartSeekSpan(context.Background(), cmd.TargetSeconds, cmd.Nonce)
		span.End()
		if metrics != nil {
			metrics.RecordSeek()
		}
	})
}

var _ client.Backend = (*Backend)(nil)
