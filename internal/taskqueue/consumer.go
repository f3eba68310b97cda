package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// StartConsumer starts a worker pool reading JobEnvelopes from topic and
// processing them with HandleJobMessage, committing only after
// successful handling or DLQ publication after bounded retries. Direct
// adaptation of internal/orchestrator/kafka.go's StartKafkaConsumer,
// generalized from a single hardcoded command topic to any job topic
// (the caller decides whether ingest/reflect/forgetting_cycle/
// cache_rebuild share one topic+partition-by-end_user_id, or run on
// separate topics). Each partition is served by exactly one worker
// (partition modulo workerCount), so one partition's messages are
// handled one at a time in offset order.
func StartConsumer(
	ctx context.Context,
	brokers []string,
	groupID string,
	jobsTopic string,
	readerConfig *kafka.ReaderConfig,
	producer *kafka.Writer,
	runner JobRunner,
	dedupe DedupeStore,
	workerCount int,
	defaultReplyTopic string,
	dedupeTTL time.Duration,
	jobTimeout time.Duration,
) error {
	rc := kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    jobsTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
	}
	if readerConfig != nil {
		rc = *readerConfig
		rc.Brokers = brokers
		rc.GroupID = groupID
		rc.Topic = jobsTopic
		if rc.MinBytes == 0 {
			rc.MinBytes = 1
		}
		if rc.MaxBytes == 0 {
			rc.MaxBytes = 10e6
		}
	}

	reader := kafka.NewReader(rc)
	defer func() {
		if err := reader.Close(); err != nil {
			log.Printf("error closing Kafka reader: %v", err)
		}
	}()

	workerCount = maxInt(workerCount, 1)
	jobs := make([]chan kafka.Message, workerCount)
	for i := range jobs {
		jobs[i] = make(chan kafka.Message, 16)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			defer wg.Done()
			for msg := range jobs[workerID] {
				maxAttempts := 3
				attempt := 0
				var lastErr error
				for {
					attempt++
					if err := HandleJobMessage(ctx, runner, dedupe, producer, msg, defaultReplyTopic, dedupeTTL, jobTimeout); err != nil {
						lastErr = err
						if attempt < maxAttempts && ctx.Err() == nil {
							backoff := time.Duration(200*(1<<uint(attempt-1))) * time.Millisecond
							log.Printf("worker=%d transient error, will retry (attempt=%d/%d, sleep=%s): %v", workerID, attempt, maxAttempts, backoff, err)
							sleepCtx, cancel := context.WithTimeout(ctx, backoff)
							<-sleepCtx.Done()
							cancel()
							continue
						}
						publishDLQAfterRetries(ctx, producer, msg, defaultReplyTopic, attempt, lastErr)
					} else {
						lastErr = nil
					}
					break
				}

				if err := reader.CommitMessages(ctx, msg); err != nil {
					log.Printf("commit failed (topic=%s partition=%d offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, err)
				} else {
					log.Printf("committed message (topic=%s partition=%d offset=%d)", msg.Topic, msg.Partition, msg.Offset)
				}
			}
		}(i)
	}

	go func() {
		defer func() {
			for _, ch := range jobs {
				close(ch)
			}
		}()
		for {
			if ctx.Err() != nil {
				return
			}
			m, err := reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				log.Printf("fetch error: %v", err)
				t := time.NewTimer(500 * time.Millisecond)
				select {
				case <-t.C:
				case <-ctx.Done():
					if !t.Stop() {
						<-t.C
					}
					return
				}
				continue
			}

			select {
			case jobs[m.Partition%workerCount] <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	return ctx.Err()
}

func publishDLQAfterRetries(ctx context.Context, producer *kafka.Writer, msg kafka.Message, defaultReplyTopic string, attempts int, lastErr error) {
	replyTopic := defaultReplyTopic
	corrID := string(msg.Key)
	var env JobEnvelope
	if err := json.Unmarshal(msg.Value, &env); err == nil {
		if env.ReplyTopic != "" {
			replyTopic = env.ReplyTopic
		}
		if env.CorrelationID != "" {
			corrID = env.CorrelationID
		}
	}

	res := JobResult{TaskID: corrID, Status: "error", Error: fmt.Sprintf("transient failure after %d attempts: %v", attempts, lastErr)}
	payload, _ := json.Marshal(res)
	dlqTopic := dlqTopicFor(replyTopic)
	if err := producer.WriteMessages(ctx, kafka.Message{Topic: dlqTopic, Key: []byte(corrID), Value: payload}); err != nil {
		log.Printf("failed to publish DLQ after retries (task_id=%s): %v", corrID, err)
	} else {
		log.Printf("published DLQ after retries (task_id=%s) to topic=%s", corrID, dlqTopic)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
