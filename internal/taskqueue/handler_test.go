package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	sent []kafka.Message
}

func (p *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	p.sent = append(p.sent, msgs...)
	return nil
}

type fakeDedupe struct {
	store map[string]string
}

func newFakeDedupe() *fakeDedupe { return &fakeDedupe{store: map[string]string{}} }

func (d *fakeDedupe) Get(_ context.Context, key string) (string, error) {
	return d.store[key], nil
}

func (d *fakeDedupe) Set(_ context.Context, key, value string, _ time.Duration) error {
	d.store[key] = value
	return nil
}

type fakeRunner struct {
	result map[string]any
	err    error
}

func (r *fakeRunner) Execute(_ context.Context, _ Kind, _ string, _ map[string]any, _ func(context.Context, string, map[string]any) error) (map[string]any, error) {
	return r.result, r.err
}

func envelopeMessage(t *testing.T, env JobEnvelope) kafka.Message {
	t.Helper()
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(env.CorrelationID), Value: b}
}

func TestHandleJobMessage_Success_PublishesReplyAndDedupes(t *testing.T) {
	producer := &fakeProducer{}
	dedupe := newFakeDedupe()
	runner := &fakeRunner{result: map[string]any{"chunk_ids": []string{"c1"}}}

	msg := envelopeMessage(t, JobEnvelope{
		TaskID: "t1", CorrelationID: "t1", EndUserID: "user-1", Kind: KindIngest,
		Payload: map[string]any{"message": "hi"},
	})

	err := HandleJobMessage(context.Background(), runner, dedupe, producer, msg, "replies", time.Minute, 0)
	require.NoError(t, err)
	require.Len(t, producer.sent, 1)

	var res JobResult
	require.NoError(t, json.Unmarshal(producer.sent[0].Value, &res))
	require.Equal(t, "success", res.Status)
	require.Equal(t, "t1", res.TaskID)
	require.NotEmpty(t, dedupe.store["t1"])
}

func TestHandleJobMessage_DedupeHit_SkipsWithoutPublishing(t *testing.T) {
	producer := &fakeProducer{}
	dedupe := newFakeDedupe()
	dedupe.store["t1"] = `{"task_id":"t1","status":"success"}`
	runner := &fakeRunner{result: map[string]any{}}

	msg := envelopeMessage(t, JobEnvelope{TaskID: "t1", CorrelationID: "t1", EndUserID: "user-1", Kind: KindIngest})

	err := HandleJobMessage(context.Background(), runner, dedupe, producer, msg, "replies", time.Minute, 0)
	require.NoError(t, err)
	require.Empty(t, producer.sent)
}

func TestHandleJobMessage_MalformedJSON_PublishesDLQAndCommits(t *testing.T) {
	producer := &fakeProducer{}
	dedupe := newFakeDedupe()
	runner := &fakeRunner{}

	msg := kafka.Message{Key: []byte("corr-x"), Value: []byte("{not json")}
	err := HandleJobMessage(context.Background(), runner, dedupe, producer, msg, "replies", time.Minute, 0)
	require.NoError(t, err)
	require.Len(t, producer.sent, 1)
	require.Equal(t, "replies.dlq", producer.sent[0].Topic)
}

func TestHandleJobMessage_MissingKind_PublishesDLQ(t *testing.T) {
	producer := &fakeProducer{}
	dedupe := newFakeDedupe()
	runner := &fakeRunner{}

	msg := envelopeMessage(t, JobEnvelope{TaskID: "t2", CorrelationID: "t2", EndUserID: "user-1"})
	err := HandleJobMessage(context.Background(), runner, dedupe, producer, msg, "replies", time.Minute, 0)
	require.NoError(t, err)
	require.Len(t, producer.sent, 1)

	var res JobResult
	require.NoError(t, json.Unmarshal(producer.sent[0].Value, &res))
	require.Equal(t, "error", res.Status)
	require.Contains(t, res.Error, "missing job kind")
}

func TestHandleJobMessage_TransientError_ReturnsErrorWithoutDLQ(t *testing.T) {
	producer := &fakeProducer{}
	dedupe := newFakeDedupe()
	runner := &fakeRunner{err: errors.New("upstream timeout")}

	msg := envelopeMessage(t, JobEnvelope{TaskID: "t3", CorrelationID: "t3", EndUserID: "user-1", Kind: KindReflect})
	err := HandleJobMessage(context.Background(), runner, dedupe, producer, msg, "replies", time.Minute, 0)
	require.Error(t, err)
	require.Empty(t, producer.sent)
}

func TestHandleJobMessage_NonTransientError_PublishesDLQ(t *testing.T) {
	producer := &fakeProducer{}
	dedupe := newFakeDedupe()
	runner := &fakeRunner{err: errors.New("validation failed: empty payload")}

	msg := envelopeMessage(t, JobEnvelope{TaskID: "t4", CorrelationID: "t4", EndUserID: "user-1", Kind: KindCacheRebuild})
	err := HandleJobMessage(context.Background(), runner, dedupe, producer, msg, "replies", time.Minute, 0)
	require.NoError(t, err)
	require.Len(t, producer.sent, 1)

	var res JobResult
	require.NoError(t, json.Unmarshal(producer.sent[0].Value, &res))
	require.Equal(t, "error", res.Status)
}

func TestSubmit_KeysMessageByEndUserID(t *testing.T) {
	producer := &fakeProducer{}
	err := Submit(context.Background(), producer, "jobs", JobEnvelope{
		TaskID: "t5", CorrelationID: "t5", EndUserID: "user-42", Kind: KindForgettingCycle,
	})
	require.NoError(t, err)
	require.Len(t, producer.sent, 1)
	require.Equal(t, "user-42", string(producer.sent[0].Key))
	require.Equal(t, "jobs", producer.sent[0].Topic)
}
