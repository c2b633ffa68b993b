package rssnet

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/ShahRicha07/RemoteShuffleService/internal/pkg/rssblock"
)

// MemoryClient keeps an upload in process memory. It backs local runs and
// tests; partition data can be read back once the upload finished.
type MemoryClient struct {
	mu sync.Mutex

	task     TaskAttempt
	started  bool
	finished bool
	closes   int

	partitions   map[int]*bytes.Buffer
	blockCounts  map[int]int
	bytesWritten int64
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		partitions:  make(map[int]*bytes.Buffer),
		blockCounts: make(map[int]int),
	}
}

func (m *MemoryClient) StartUpload(task TaskAttempt, numMaps, numPartitions int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("upload for %s already started", m.task)
	}
	m.task = task
	m.started = true
	return nil
}

func (m *MemoryClient) WriteDataBlock(partition int, block *rssblock.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started || m.finished {
		return fmt.Errorf("no open upload")
	}
	buf, ok := m.partitions[partition]
	if !ok {
		buf = new(bytes.Buffer)
		m.partitions[partition] = buf
	}
	buf.Write(block.Marshal())
	m.blockCounts[partition]++
	m.bytesWritten += int64(block.WireSize())
	return nil
}

func (m *MemoryClient) FinishUpload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return fmt.Errorf("no open upload")
	}
	if m.finished {
		return fmt.Errorf("upload for %s already finished", m.task)
	}
	m.finished = true
	return nil
}

func (m *MemoryClient) ShuffleWriteBytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bytesWritten
}

func (m *MemoryClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

// PartitionData returns the wire bytes a partition received.
func (m *MemoryClient) PartitionData(partition int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.partitions[partition]
	if !ok {
		return nil
	}
	return buf.Bytes()
}

// PartitionBlocks returns how many blocks a partition received.
func (m *MemoryClient) PartitionBlocks(partition int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blockCounts[partition]
}

// Finished reports whether the upload completed.
func (m *MemoryClient) Finished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished
}

// Closes reports how many times Close was called.
func (m *MemoryClient) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}
