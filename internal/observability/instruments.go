package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Instruments are the business counters exported on /metrics. A nil
// *Instruments is valid and records nothing, so packages can be used in
// tests without a meter provider.
type Instruments struct {
	dossiersCreated  metric.Int64Counter
	documentsStored  metric.Int64Counter
	uploadBytes      metric.Int64Counter
	checkoutSessions metric.Int64Counter
	webhookEvents    metric.Int64Counter
	faqRequests      metric.Int64Counter
}

// NewInstruments registers the counters on meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	var (
		i   Instruments
		err error
	)
	if i.dossiersCreated, err = meter.Int64Counter("clientportal.dossiers.created",
		metric.WithDescription("Dossiers created, by case type and origin")); err != nil {
		return nil, err
	}
	if i.documentsStored, err = meter.Int64Counter("clientportal.documents.uploaded",
		metric.WithDescription("Documents stored successfully")); err != nil {
		return nil, err
	}
	if i.uploadBytes, err = meter.Int64Counter("clientportal.documents.upload_bytes",
		metric.WithUnit("By"), metric.WithDescription("Bytes written to the object store")); err != nil {
		return nil, err
	}
	if i.checkoutSessions, err = meter.Int64Counter("clientportal.checkout.sessions",
		metric.WithDescription("Checkout sessions requested from the payment processor")); err != nil {
		return nil, err
	}
	if i.webhookEvents, err = meter.Int64Counter("clientportal.webhook.events",
		metric.WithDescription("Payment webhook deliveries, by event type and outcome")); err != nil {
		return nil, err
	}
	if i.faqRequests, err = meter.Int64Counter("clientportal.faq.requests",
		metric.WithDescription("FAQ questions answered, by intent")); err != nil {
		return nil, err
	}
	return &i, nil
}

// NopInstruments returns instruments backed by a no-op meter.
func NopInstruments() *Instruments {
	i, _ := NewInstruments(noop.NewMeterProvider().Meter("noop"))
	return i
}

func (i *Instruments) DossierCreated(ctx context.Context, caseType, origin string) {
	if i == nil {
		return
	}
	i.dossiersCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("case_type", caseType),
		attribute.String("origin", origin),
	))
}

func (i *Instruments) DocumentStored(ctx context.Context, size int64) {
	if i == nil {
		return
	}
	i.documentsStored.Add(ctx, 1)
	i.uploadBytes.Add(ctx, size)
}

func (i *Instruments) CheckoutSession(ctx context.Context, caseType, outcome string) {
	if i == nil {
		return
	}
	i.checkoutSessions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("case_type", caseType),
		attribute.String("outcome", outcome),
	))
}

func (i *Instruments) WebhookEvent(ctx context.Context, eventType, outcome string) {
	if i == nil {
		return
	}
	i.webhookEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", eventType),
		attribute.String("outcome", outcome),
	))
}

func (i *Instruments) FAQRequest(ctx context.Context, intent, backend string) {
	if i == nil {
		return
	}
	i.faqRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("intent", intent),
		attribute.String("backend", backend),
	))
}
