package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"galaxychat/internal/model"
	"galaxychat/internal/platform/rabbitmq"
)

// Appender applies one queued message append.
type Appender interface {
	Apply(ctx context.Context, job model.AppendJob) error
}

type AppendWorker struct {
	conn      *amqp.Connection
	appender  Appender
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewAppendWorker(conn *amqp.Connection, appender Appender, queueName string) *AppendWorker {
	return &AppendWorker{
		conn:      conn,
		appender:  appender,
		queueName: queueName,
	}
}

func (w *AppendWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.process(workerCtx, d.Body); err != nil {
					log.WithField("message_id", d.MessageId).Errorf("append worker: %v", err)
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	log.WithField("queue", w.queueName).Info("append worker started")
	return nil
}

var errEmptyJob = errors.New("empty append job")

func (w *AppendWorker) process(ctx context.Context, body []byte) error {
	if len(body) == 0 {
		return errEmptyJob
	}
	var job model.AppendJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("decode append job failed: %w", err)
	}
	if err := w.appender.Apply(ctx, job); err != nil {
		return fmt.Errorf("apply append job for chat %s failed: %w", job.ChatID, err)
	}
	return nil
}

func (w *AppendWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
