package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/durable-streams/durable-streams/packages/caddy-plugin/store"
)

// streamPath is the durable-streams path every task's event log lives under.
const streamPath = "/orchestrator/events"

// FileStore provides durable, file-based storage for a task's Event log,
// wrapping the durable-streams FileStore so subscribers survive
// disconnection without missing events.
type FileStore struct {
	path  string
	store *store.FileStore

	mu      sync.Mutex
	nextSeq uint64
	closed  bool

	longPoll *longPollManager
}

// longPollManager fans out append notifications to blocked Subscribe calls.
type longPollManager struct {
	mu      sync.Mutex
	waiters []chan struct{}
}

func (lp *longPollManager) notify() {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	for _, ch := range lp.waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (lp *longPollManager) register(ch chan struct{}) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	lp.waiters = append(lp.waiters, ch)
}

func (lp *longPollManager) unregister(ch chan struct{}) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	for i, w := range lp.waiters {
		if w == ch {
			lp.waiters = append(lp.waiters[:i], lp.waiters[i+1:]...)
			break
		}
	}
}

// NewFileStore creates or opens a durable event stream rooted at path's
// parent directory, scanning existing events to resume sequence assignment.
func NewFileStore(path string) (*FileStore, error) {
	dataDir := filepath.Join(filepath.Dir(path), ".stream-data")

	dsStore, err := store.NewFileStore(store.FileStoreConfig{
		DataDir:        dataDir,
		MaxFileHandles: 10,
	})
	if err != nil {
		return nil, fmt.Errorf("stream: create durable-streams store: %w", err)
	}

	if _, _, err := dsStore.Create(streamPath, store.CreateOptions{ContentType: "application/json"}); err != nil {
		dsStore.Close()
		return nil, fmt.Errorf("stream: create stream: %w", err)
	}

	fs := &FileStore{path: path, store: dsStore, nextSeq: 1, longPoll: &longPollManager{}}
	if err := fs.scanMaxSequence(); err != nil {
		dsStore.Close()
		return nil, fmt.Errorf("stream: scan existing events: %w", err)
	}
	return fs, nil
}

func (fs *FileStore) scanMaxSequence() error {
	messages, _, err := fs.store.Read(streamPath, store.ZeroOffset)
	if err != nil {
		if err == store.ErrStreamNotFound {
			return nil
		}
		return err
	}

	var maxSeq uint64
	for _, msg := range messages {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			continue
		}
		if event.Seq > maxSeq {
			maxSeq = event.Seq
		}
	}
	fs.nextSeq = maxSeq + 1
	return nil
}

// Append assigns the next sequence number to event and durably persists it,
// waking any blocked Subscribe callers.
func (fs *FileStore) Append(event *Event) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	event.Seq = fs.nextSeq

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("stream: marshal event: %w", err)
	}
	if _, err := fs.store.Append(streamPath, data, store.AppendOptions{}); err != nil {
		return fmt.Errorf("stream: append event: %w", err)
	}

	fs.nextSeq++
	fs.longPoll.notify()
	return nil
}

// Read returns every event with Seq >= fromSeq. fromSeq of 0 returns all.
func (fs *FileStore) Read(fromSeq uint64) ([]*Event, error) {
	messages, _, err := fs.store.Read(streamPath, store.ZeroOffset)
	if err != nil {
		if err == store.ErrStreamNotFound {
			return []*Event{}, nil
		}
		return nil, fmt.Errorf("stream: read stream: %w", err)
	}

	var events []*Event
	for _, msg := range messages {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			continue
		}
		if event.Seq >= fromSeq {
			eventCopy := event
			events = append(events, &eventCopy)
		}
	}
	return events, nil
}

// Subscribe returns a channel that receives events as they are appended,
// starting from fromSeq (1 if 0). The channel closes when ctx is done.
func (fs *FileStore) Subscribe(ctx context.Context, fromSeq uint64, pollInterval time.Duration) (<-chan *Event, error) {
	ch := make(chan *Event, 100)

	go func() {
		defer close(ch)

		nextSeq := fromSeq
		if nextSeq == 0 {
			nextSeq = 1
		}

		notifyCh := make(chan struct{}, 1)
		fs.longPoll.register(notifyCh)
		defer fs.longPoll.unregister(notifyCh)

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		deliver := func() bool {
			events, err := fs.Read(nextSeq)
			if err != nil {
				return true
			}
			for _, event := range events {
				select {
				case <-ctx.Done():
					return false
				case ch <- event:
					if event.Seq >= nextSeq {
						nextSeq = event.Seq + 1
					}
				}
			}
			return true
		}

		if !deliver() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-notifyCh:
				if !deliver() {
					return
				}
			case <-ticker.C:
				if !deliver() {
					return
				}
			}
		}
	}()

	return ch, nil
}

// LastSeq returns the sequence number of the last appended event, or 0.
func (fs *FileStore) LastSeq() uint64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.nextSeq <= 1 {
		return 0
	}
	return fs.nextSeq - 1
}

// Close releases the underlying durable-streams store. Safe to call
// multiple times.
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return nil
	}
	fs.closed = true
	return fs.store.Close()
}

// Path returns the path this FileStore was opened with.
func (fs *FileStore) Path() string {
	return fs.path
}
