package rss

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// CombineFunc merges two values for the same key during map-side
// aggregation. existing is owned by the aggregation window and may be
// mutated or returned directly; the result must not alias incoming.
type CombineFunc func(existing, incoming []byte) []byte

type aggEntry struct {
	partition int
	key       []byte
	value     []byte
}

// aggregatingBuffer combines same-key records in an LRU window before
// they reach the staging buffer. Cold keys get evicted into the stage,
// which applies the usual spill thresholds.
type aggregatingBuffer struct {
	numPartitions int
	combine       CombineFunc
	window        *lru.Cache
	stage         *recordBuffer

	windowBytes int64
	accepted    int64
	emitted     int64

	pending  []Spill
	evictErr error
}

func newAggregatingBuffer(numPartitions int, combine CombineFunc, maxKeys, initialSize int, partitionMax, spillThreshold int64) (*aggregatingBuffer, error) {
	if combine == nil {
		return nil, fmt.Errorf("map-side aggregation requires a combine function")
	}
	b := &aggregatingBuffer{
		numPartitions: numPartitions,
		combine:       combine,
		stage:         newRecordBuffer(numPartitions, initialSize, partitionMax, spillThreshold),
	}
	window, err := lru.NewWithEvict(maxKeys, b.onEvict)
	if err != nil {
		return nil, fmt.Errorf("build aggregation window: %w", err)
	}
	b.window = window
	return b, nil
}

// onEvict moves a cooled-off key into the staging buffer. Spills the
// stage triggers are parked in pending until the current AddRecord or
// Clear call picks them up.
func (b *aggregatingBuffer) onEvict(_, value interface{}) {
	entry := value.(*aggEntry)
	b.windowBytes -= int64(recordOverhead + len(entry.key) + len(entry.value))
	b.emitted++
	spills, err := b.stage.AddRecord(entry.partition, entry.key, entry.value)
	b.pending = append(b.pending, spills...)
	if err != nil && b.evictErr == nil {
		b.evictErr = err
	}
}

func (b *aggregatingBuffer) AddRecord(partition int, key, value []byte) ([]Spill, error) {
	if partition < 0 || partition >= b.numPartitions {
		return nil, fmt.Errorf("partition %d out of range [0, %d)", partition, b.numPartitions)
	}
	b.accepted++

	if v, ok := b.window.Get(string(key)); ok {
		// The partition of the first appearance sticks; only the
		// value is merged.
		entry := v.(*aggEntry)
		before := len(entry.value)
		entry.value = b.combine(entry.value, value)
		b.windowBytes += int64(len(entry.value) - before)
		return b.takePending()
	}

	entry := &aggEntry{
		partition: partition,
		key:       append([]byte(nil), key...),
		value:     append([]byte(nil), value...),
	}
	b.windowBytes += int64(recordOverhead + len(entry.key) + len(entry.value))
	b.window.Add(string(key), entry)
	return b.takePending()
}

func (b *aggregatingBuffer) takePending() ([]Spill, error) {
	spills := b.pending
	err := b.evictErr
	b.pending = nil
	b.evictErr = nil
	return spills, err
}

func (b *aggregatingBuffer) Clear() ([]Spill, error) {
	b.window.Purge()
	staged, err := b.stage.Clear()
	spills, evictErr := b.takePending()
	spills = append(spills, staged...)
	if err == nil {
		err = evictErr
	}
	return spills, err
}

func (b *aggregatingBuffer) RecordsWritten() int64 {
	return b.accepted
}

func (b *aggregatingBuffer) CollectionSizeInBytes() int64 {
	return b.windowBytes + b.stage.CollectionSizeInBytes()
}

// ReductionFactor is the ratio of records that left the window to
// records that entered it. 0.5 means aggregation halved the data.
func (b *aggregatingBuffer) ReductionFactor() float64 {
	if b.accepted == 0 {
		return 1
	}
	return float64(b.emitted) / float64(b.accepted)
}
