package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"arena-quiz-service/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultHistoryQueue = "quiz.submission-history"
	DefaultResultQueue  = "quiz.game-result"
)

const publishTimeout = 5 * time.Second

// publisher is the slice of *amqp.Channel the sink needs.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// HistoryMessage is the body sent to the submission-history queue.
type HistoryMessage struct {
	UserID      string              `json:"userId"`
	Submissions []domain.Submission `json:"submissions"`
}

// ResultSink publishes finished-game data to durable RabbitMQ queues.
type ResultSink struct {
	conn         *amqp.Connection
	ch           publisher
	historyQueue string
	resultQueue  string

	mu sync.Mutex
}

// Dial connects and declares both queues.
func Dial(url, historyQueue, resultQueue string) (*ResultSink, error) {
	if historyQueue == "" {
		historyQueue = DefaultHistoryQueue
	}
	if resultQueue == "" {
		resultQueue = DefaultResultQueue
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	for _, name := range []string{historyQueue, resultQueue} {
		_, err := ch.QueueDeclare(
			name,  // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("declare queue %s: %w", name, err)
		}
	}

	sink := newResultSink(ch, historyQueue, resultQueue)
	sink.conn = conn
	return sink, nil
}

func newResultSink(ch publisher, historyQueue, resultQueue string) *ResultSink {
	return &ResultSink{ch: ch, historyQueue: historyQueue, resultQueue: resultQueue}
}

func (s *ResultSink) SendSubmissionHistory(ctx context.Context, userID string, history []domain.Submission) error {
	return s.publish(ctx, s.historyQueue, HistoryMessage{UserID: userID, Submissions: history})
}

func (s *ResultSink) SendFinalResult(ctx context.Context, result domain.GameResult) error {
	return s.publish(ctx, s.resultQueue, result)
}

// Close releases the connection and its channel.
func (s *ResultSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *ResultSink) publish(ctx context.Context, queue string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", queue, err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	// one publisher per channel at a time
	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.ch.PublishWithContext(ctx,
		"",    // default exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Timestamp:    time.Now(),
			Body:         raw,
		})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}
