package mq

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestPublishSpanPropagatesToConsumer(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	in := amqp.Table{"x-origin": "test"}
	_, pubSpan, headers := StartPublishSpan(context.Background(), "fitcoach", "fitcoach.events", "onboarding.completed", in)
	EndSpan(pubSpan, nil)

	assert.Equal(t, "test", headers["x-origin"])
	assert.NotEmpty(t, headers["traceparent"])
	assert.NotContains(t, in, "traceparent")

	_, span := StartConsumeSpan(context.Background(), "fitcoach", "onboarding.completed", amqp.Delivery{Headers: headers})
	defer span.End()

	assert.Equal(t, pubSpan.SpanContext().TraceID(), span.SpanContext().TraceID())
}

func TestCarrierIgnoresNonString(t *testing.T) {
	c := &MessageHeaderCarrier{Headers: amqp.Table{"n": int32(1)}}
	assert.Empty(t, c.Get("n"))

	c = &MessageHeaderCarrier{}
	c.Set("k", "v")
	assert.Equal(t, []string{"k"}, c.Keys())
}
