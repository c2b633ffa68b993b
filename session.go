package rss

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ShahRicha07/RemoteShuffleService/internal/pkg/rssblock"
	"github.com/ShahRicha07/RemoteShuffleService/internal/pkg/rssnet"
)

// lengthTracker accumulates the compressed payload bytes each
// partition has received.
type lengthTracker struct {
	sizes []int64
}

func newLengthTracker(numPartitions int) *lengthTracker {
	return &lengthTracker{sizes: make([]int64, numPartitions)}
}

func (t *lengthTracker) add(partition int, n int64) {
	t.sizes[partition] += n
}

func (t *lengthTracker) snapshot() []int64 {
	out := make([]int64, len(t.sizes))
	copy(out, t.sizes)
	return out
}

type sessionState int

const (
	sessionNotStarted sessionState = iota
	sessionStarted
	sessionFinished
)

type partitionBlock struct {
	partition int
	block     *rssblock.Block
}

// uploadSession walks one upload through its client: start, block
// batches, finish, close. Close requests can come from several places
// at once, the stop path racing the write path included; exactly one
// reaches the client.
type uploadSession struct {
	client  rssnet.WriteClient
	lengths *lengthTracker

	state     sessionState
	numSpills int

	closeMu sync.Mutex
	closed  bool
	closing sync.WaitGroup
}

func newUploadSession(client rssnet.WriteClient, numPartitions int) *uploadSession {
	return &uploadSession{
		client:  client,
		lengths: newLengthTracker(numPartitions),
	}
}

func (s *uploadSession) start(task TaskAttempt, numMaps, numPartitions int) error {
	if s.state != sessionNotStarted {
		return fmt.Errorf("%w: upload already started", ErrInvalidState)
	}
	if err := s.client.StartUpload(task, numMaps, numPartitions); err != nil {
		return err
	}
	s.state = sessionStarted
	return nil
}

// sendBlocks transmits one spill batch. Partition lengths move only
// after the client accepted a block; the spill counter moves once per
// non-empty batch.
func (s *uploadSession) sendBlocks(blocks []partitionBlock) error {
	if s.state != sessionStarted {
		return fmt.Errorf("%w: no open upload session", ErrInvalidState)
	}
	if len(blocks) == 0 {
		return nil
	}
	for _, pb := range blocks {
		if err := s.client.WriteDataBlock(pb.partition, pb.block); err != nil {
			return err
		}
		s.lengths.add(pb.partition, int64(len(pb.block.Data)))
	}
	s.numSpills++
	return nil
}

func (s *uploadSession) finish() (int64, error) {
	if s.state != sessionStarted {
		return 0, fmt.Errorf("%w: no open upload session", ErrInvalidState)
	}
	if err := s.client.FinishUpload(); err != nil {
		return 0, err
	}
	s.state = sessionFinished
	return s.client.ShuffleWriteBytes(), nil
}

// closeAsync releases the client without blocking the caller. Safe to
// request from any goroutine, any number of times.
func (s *uploadSession) closeAsync() {
	s.closing.Add(1)
	go func() {
		defer s.closing.Done()
		s.close()
	}()
}

func (s *uploadSession) close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if err := s.client.Close(); err != nil {
		log.Warnf("failed to close shuffle write client: %v", err)
	}
}

// awaitClose blocks until every pending closeAsync has run.
func (s *uploadSession) awaitClose() {
	s.closing.Wait()
}
