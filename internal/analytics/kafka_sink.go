package analytics

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/logger"
)

var (
	// ErrBufferFull is returned by KafkaSink.Write when the event was dropped.
	ErrBufferFull = errors.New("analytics buffer full, event dropped")
	// ErrSinkClosed is returned by KafkaSink.Write once Close has been called.
	ErrSinkClosed = errors.New("analytics sink closed")
)

// Publisher is the part of kafka.Producer the sink needs.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// KafkaSink buffers events in a channel and publishes them in batches from a
// background goroutine, so Write never blocks a request.
type KafkaSink struct {
	publisher     Publisher
	eventCh       chan Event
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}

	// mu guards closed and the close of eventCh against concurrent sends.
	mu     sync.RWMutex
	closed bool
}

func NewKafkaSink(publisher Publisher, bufferSize, batchSize int, flushInterval time.Duration) *KafkaSink {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &KafkaSink{
		publisher:     publisher,
		eventCh:       make(chan Event, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger.WithComponent("kafka-sink"),
		done:          make(chan struct{}),
	}
}

// Start launches the publish loop. It runs until Close is called; ctx bounds
// individual publishes.
func (s *KafkaSink) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.flushInterval)
		defer ticker.Stop()

		batch := make([]kafka.Event, 0, s.batchSize)
		for {
			select {
			case ev, ok := <-s.eventCh:
				if !ok {
					flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					s.flush(flushCtx, batch)
					cancel()
					return
				}
				batch = append(batch, kafka.Event{Key: ev.Path, Value: ev})
				if len(batch) >= s.batchSize {
					s.flush(ctx, batch)
					batch = batch[:0]
				}
			case <-ticker.C:
				s.flush(ctx, batch)
				batch = batch[:0]
			}
		}
	}()
	s.logger.Info("kafka sink started",
		"buffer_size", cap(s.eventCh),
		"batch_size", s.batchSize,
		"flush_interval", s.flushInterval,
	)
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(_ context.Context, ev Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.eventCh <- ev:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting events, publishes what is buffered and waits for the
// loop to exit. Later writes fail with ErrSinkClosed.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.eventCh)
	}
	s.mu.Unlock()
	<-s.done
	return nil
}

func (s *KafkaSink) flush(ctx context.Context, batch []kafka.Event) {
	if len(batch) == 0 {
		return
	}
	if err := s.publisher.PublishBatch(ctx, batch); err != nil {
		s.logger.Warn("latency batch publish failed, events dropped", "events", len(batch), "error", err)
		return
	}
	s.logger.Debug("latency batch published", "events", len(batch))
}
