package rss

import (
	"time"

	"github.com/ShahRicha07/RemoteShuffleService/internal/pkg/rssnet"
)

// TaskAttempt identifies the map task attempt a writer uploads for.
// The shuffle server keys all uploaded data by this identity, so two
// attempts of the same map task never clobber each other.
type TaskAttempt = rssnet.TaskAttempt

// Record is a single key/value pair produced by a map task.
type Record struct {
	Key   []byte
	Value []byte
}

// RecordIterator streams the records of a map task to a Writer. It
// follows the usual Next/Err shape: Next advances and reports whether
// a record is available, Err reports the first upstream failure once
// Next has returned false.
type RecordIterator interface {
	Next() bool
	Record() Record
	Err() error
}

type sliceIterator struct {
	records []Record
	pos     int
}

// NewSliceIterator wraps an in-memory record slice as a RecordIterator.
func NewSliceIterator(records []Record) RecordIterator {
	return &sliceIterator{records: records, pos: -1}
}

func (s *sliceIterator) Next() bool {
	s.pos++
	return s.pos < len(s.records)
}

func (s *sliceIterator) Record() Record {
	return s.records[s.pos]
}

func (s *sliceIterator) Err() error {
	return nil
}

// WriteMetrics summarizes a completed shuffle write.
type WriteMetrics struct {
	RecordsWritten  int64         `json:"recordsWritten"`
	BytesWritten    int64         `json:"bytesWritten"`
	WriteTime       time.Duration `json:"writeTime"`
	NumSpills       int           `json:"numSpills"`
	ReductionFactor float64       `json:"reductionFactor"`
}

// Report is the writer's final account of an upload: where the data
// lives, how many compressed payload bytes each partition received,
// and the write metrics. Readers planning fetches must be able to
// tell written partitions from empty ones, so empty partitions carry
// a length of 1 instead of 0.
type Report struct {
	Location         string       `json:"location"`
	PartitionLengths []int64      `json:"partitionLengths"`
	Metrics          WriteMetrics `json:"metrics"`
}
