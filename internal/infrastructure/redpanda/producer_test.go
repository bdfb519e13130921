package redpanda

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/gestor-t/neuroeval/internal/domain/evaluation"
)

func TestBuildRecord(t *testing.T) {
	event, err := evaluation.NewEvent("sess-1", evaluation.EventScoresRecorded,
		evaluation.ScoresRecordedData{AdministrationID: "adm-1", InstrumentID: "wisc"})
	require.NoError(t, err)

	record, err := buildRecord(context.Background(), TopicEvaluationEvents, event)
	require.NoError(t, err)

	assert.Equal(t, TopicEvaluationEvents, record.Topic)
	assert.Equal(t, "sess-1", string(record.Key))

	var decoded evaluation.Event
	require.NoError(t, json.Unmarshal(record.Value, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, evaluation.EventScoresRecorded, decoded.EventType)

	carrier := headerCarrier{record: record}
	assert.Equal(t, string(evaluation.EventScoresRecorded), carrier.Get("event_type"))
	assert.Equal(t, event.ID, carrier.Get("event_id"))
	assert.Empty(t, carrier.Get("traceparent"))
}

func TestBuildRecord_InjectsTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "request")
	defer span.End()

	event, err := evaluation.NewEvent("sess-2", evaluation.EventSessionStarted, nil)
	require.NoError(t, err)

	record, err := buildRecord(ctx, TopicEvaluationEvents, event)
	require.NoError(t, err)

	traceparent := headerCarrier{record: record}.Get("traceparent")
	require.NotEmpty(t, traceparent)
	assert.Contains(t, traceparent, span.SpanContext().TraceID().String())
}

func TestHeaderCarrier_SetReplaces(t *testing.T) {
	c := headerCarrier{record: &kgo.Record{}}
	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("a", "3")

	assert.Equal(t, "3", c.Get("a"))
	assert.ElementsMatch(t, []string{"a", "b"}, c.Keys())
}

func TestNewProducer(t *testing.T) {
	_, err := NewProducer(ProducerConfig{}, nil)
	require.Error(t, err)

	cfg := DefaultProducerConfig()
	cfg.Topic = ""
	p, err := NewProducer(cfg, nil)
	require.NoError(t, err)
	defer p.client.Close()

	assert.Equal(t, TopicEvaluationEvents, p.config.Topic)
}

func TestPublish_ReportsFailureToHook(t *testing.T) {
	var failures, successes atomic.Int32
	p, err := NewProducer(DefaultProducerConfig(), nil, WithResultHook(func(ok bool) {
		if ok {
			successes.Add(1)
		} else {
			failures.Add(1)
		}
	}))
	require.NoError(t, err)
	p.client.Close()

	event, err := evaluation.NewEvent("sess-1", evaluation.EventSessionStarted, nil)
	require.NoError(t, err)
	p.Publish(context.Background(), event)

	require.Eventually(t, func() bool { return failures.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, successes.Load())
}

func TestEventTopicConfigs(t *testing.T) {
	configs := EventTopicConfigs("custom.events")
	require.Len(t, configs, 1)
	assert.Equal(t, "custom.events", configs[0].Name)
	assert.Positive(t, configs[0].Partitions)
	require.NotNil(t, configs[0].Configs["cleanup.policy"])
	assert.Equal(t, "delete", *configs[0].Configs["cleanup.policy"])
}
