package rss

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"github.com/ShahRicha07/RemoteShuffleService/internal/pkg/rssblock"
)

// Writer uploads the records of one map task attempt to the remote
// shuffle service. It classifies records into partitions, buffers and
// optionally aggregates them, frames spilled runs into compressed
// blocks and streams those through a write client.
//
// A Writer consumes exactly one record iterator. Call Write, then
// Stop; Stop(false) also works before or instead of Write to release
// the client after a failure elsewhere in the task.
type Writer struct {
	task          TaskAttempt
	numMaps       int
	numPartitions int

	partitioner Partitioner
	buffer      Buffer
	framer      *rssblock.Framer
	session     *uploadSession

	consumed int32
	report   *Report
}

// NewWriter builds a writer for the given task attempt. Settings come
// from the loaded configuration, overridden by options.
func NewWriter(task TaskAttempt, numMaps, numPartitions int, options ...Option) (*Writer, error) {
	if numPartitions < 1 {
		return nil, fmt.Errorf("shuffle needs at least one partition, got %d", numPartitions)
	}
	cfg := newWriterConfig()
	for _, opt := range options {
		opt(cfg)
	}

	framer, err := rssblock.NewFramer(cfg.codec, cfg.compressionLevel)
	if err != nil {
		return nil, err
	}
	buffer, err := cfg.buildBuffer(numPartitions)
	if err != nil {
		return nil, err
	}
	client, err := cfg.buildClient()
	if err != nil {
		return nil, err
	}

	return &Writer{
		task:          task,
		numMaps:       numMaps,
		numPartitions: numPartitions,
		partitioner:   cfg.partitioner,
		buffer:        buffer,
		framer:        framer,
		session:       newUploadSession(client, numPartitions),
	}, nil
}

// Write drains the iterator and uploads everything it produced. It
// can be called once per writer; later calls fail with
// ErrInvalidState. On success the returned report is also retrievable
// through Stop(true).
func (w *Writer) Write(records RecordIterator) (*Report, error) {
	if !atomic.CompareAndSwapInt32(&w.consumed, 0, 1) {
		return nil, fmt.Errorf("%w: writer already consumed", ErrInvalidState)
	}
	start := time.Now()

	if err := w.session.start(w.task, w.numMaps, w.numPartitions); err != nil {
		return nil, err
	}

	for records.Next() {
		rec := records.Record()
		partition := 0
		if w.numPartitions > 1 {
			partition = w.partitioner.Partition(rec.Key, w.numPartitions)
		}
		spills, err := w.buffer.AddRecord(partition, rec.Key, rec.Value)
		if err != nil {
			return nil, err
		}
		if err := w.sendSpills(spills); err != nil {
			return nil, err
		}
	}
	if err := records.Err(); err != nil {
		return nil, err
	}

	spills, err := w.buffer.Clear()
	if err != nil {
		return nil, err
	}
	if err := w.sendSpills(spills); err != nil {
		return nil, err
	}

	totalBytes, err := w.session.finish()
	if err != nil {
		return nil, err
	}
	w.report = w.buildReport(totalBytes, time.Since(start))
	log.Infof("shuffle write for %s done: %d records, %s in %d spills",
		w.task, w.buffer.RecordsWritten(), humanize.Bytes(uint64(totalBytes)), w.session.numSpills)
	return w.report, nil
}

// sendSpills frames one spill batch and hands it to the session.
// Spills that carry no data are dropped before framing.
func (w *Writer) sendSpills(spills []Spill) error {
	var blocks []partitionBlock
	for _, spill := range spills {
		if len(spill.Data) == 0 {
			continue
		}
		block, err := w.framer.Frame(spill.Data)
		if err != nil {
			return err
		}
		blocks = append(blocks, partitionBlock{partition: spill.Partition, block: block})
	}
	return w.session.sendBlocks(blocks)
}

// buildReport snapshots the partition lengths and swaps in the empty
// partition sentinel: readers cannot tell an unwritten partition from
// an absent one by length 0, so empty partitions report 1.
func (w *Writer) buildReport(totalBytes int64, elapsed time.Duration) *Report {
	lengths := w.session.lengths.snapshot()
	for i, n := range lengths {
		if n == 0 {
			lengths[i] = 1
		}
	}
	return &Report{
		Location:         w.task.String(),
		PartitionLengths: lengths,
		Metrics: WriteMetrics{
			RecordsWritten:  w.buffer.RecordsWritten(),
			BytesWritten:    totalBytes,
			WriteTime:       elapsed,
			NumSpills:       w.session.numSpills,
			ReductionFactor: w.buffer.ReductionFactor(),
		},
	}
}

// Stop releases the write client in the background and, for a
// successful task, returns the final report. Stop(false) never fails:
// it is the cleanup path for tasks that died elsewhere. Stop(true)
// demands a completed write with nothing left in the buffers.
func (w *Writer) Stop(success bool) (*Report, error) {
	w.session.closeAsync()
	if !success {
		return nil, nil
	}
	if residual := w.buffer.CollectionSizeInBytes(); residual != 0 {
		return nil, fmt.Errorf("%w: %d residual buffered bytes on successful stop", ErrInvalidState, residual)
	}
	if w.report == nil {
		return nil, fmt.Errorf("%w: no completed write to report", ErrInvalidState)
	}
	return w.report, nil
}

// AwaitClose blocks until the background close requested by Stop has
// run. Orderly shutdowns and tests use it; the write path never needs
// to.
func (w *Writer) AwaitClose() {
	w.session.awaitClose()
}
