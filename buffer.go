package rss

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Spill is a run of encoded records for one partition, handed off by a
// Buffer when it decides the data should go out. The caller owns Data;
// the buffer never touches it again.
type Spill struct {
	Partition int
	Data      []byte
}

// Buffer accumulates classified records between spills. AddRecord and
// Clear return the spills they trigger; a nil slice means the data is
// still being held.
type Buffer interface {
	AddRecord(partition int, key, value []byte) ([]Spill, error)
	Clear() ([]Spill, error)
	RecordsWritten() int64
	CollectionSizeInBytes() int64
	ReductionFactor() float64
}

// Each record is framed as [keyLen][key][valueLen][value] with 4-byte
// big-endian lengths, the same layout the shuffle readers decode.
const recordOverhead = 8

func appendRecord(buf *bytes.Buffer, key, value []byte) int {
	var lengths [4]byte
	binary.BigEndian.PutUint32(lengths[:], uint32(len(key)))
	buf.Write(lengths[:])
	buf.Write(key)
	binary.BigEndian.PutUint32(lengths[:], uint32(len(value)))
	buf.Write(lengths[:])
	buf.Write(value)
	return recordOverhead + len(key) + len(value)
}

// recordBuffer keeps one growable byte buffer per partition. A single
// partition spills once it crosses partitionMax; the whole collection
// drains once it crosses spillThreshold.
type recordBuffer struct {
	initialSize    int
	partitionMax   int64
	spillThreshold int64

	partitions []*bytes.Buffer
	totalBytes int64
	records    int64
}

func newRecordBuffer(numPartitions, initialSize int, partitionMax, spillThreshold int64) *recordBuffer {
	return &recordBuffer{
		initialSize:    initialSize,
		partitionMax:   partitionMax,
		spillThreshold: spillThreshold,
		partitions:     make([]*bytes.Buffer, numPartitions),
	}
}

func (b *recordBuffer) AddRecord(partition int, key, value []byte) ([]Spill, error) {
	if partition < 0 || partition >= len(b.partitions) {
		return nil, fmt.Errorf("partition %d out of range [0, %d)", partition, len(b.partitions))
	}
	buf := b.partitions[partition]
	if buf == nil {
		buf = &bytes.Buffer{}
		buf.Grow(b.initialSize)
		b.partitions[partition] = buf
	}
	b.totalBytes += int64(appendRecord(buf, key, value))
	b.records++

	if b.totalBytes >= b.spillThreshold {
		return b.drain(), nil
	}
	if int64(buf.Len()) >= b.partitionMax {
		return []Spill{b.spillPartition(partition)}, nil
	}
	return nil, nil
}

// spillPartition abandons the partition's buffer and hands out its
// backing bytes. Reusing the buffer instead would let the next record
// overwrite spill data the caller still holds.
func (b *recordBuffer) spillPartition(partition int) Spill {
	buf := b.partitions[partition]
	b.partitions[partition] = nil
	b.totalBytes -= int64(buf.Len())
	return Spill{Partition: partition, Data: buf.Bytes()}
}

func (b *recordBuffer) drain() []Spill {
	var spills []Spill
	for p, buf := range b.partitions {
		if buf == nil || buf.Len() == 0 {
			continue
		}
		spills = append(spills, b.spillPartition(p))
	}
	return spills
}

func (b *recordBuffer) Clear() ([]Spill, error) {
	return b.drain(), nil
}

func (b *recordBuffer) RecordsWritten() int64 {
	return b.records
}

func (b *recordBuffer) CollectionSizeInBytes() int64 {
	return b.totalBytes
}

func (b *recordBuffer) ReductionFactor() float64 {
	return 1
}

// directBuffer skips buffering entirely: every record becomes its own
// spill. Useful when records are large or memory is tight.
type directBuffer struct {
	numPartitions int
	records       int64
}

func newDirectBuffer(numPartitions int) *directBuffer {
	return &directBuffer{numPartitions: numPartitions}
}

func (b *directBuffer) AddRecord(partition int, key, value []byte) ([]Spill, error) {
	if partition < 0 || partition >= b.numPartitions {
		return nil, fmt.Errorf("partition %d out of range [0, %d)", partition, b.numPartitions)
	}
	buf := &bytes.Buffer{}
	buf.Grow(recordOverhead + len(key) + len(value))
	appendRecord(buf, key, value)
	b.records++
	return []Spill{{Partition: partition, Data: buf.Bytes()}}, nil
}

func (b *directBuffer) Clear() ([]Spill, error) {
	return nil, nil
}

func (b *directBuffer) RecordsWritten() int64 {
	return b.records
}

func (b *directBuffer) CollectionSizeInBytes() int64 {
	return 0
}

func (b *directBuffer) ReductionFactor() float64 {
	return 1
}
