package rss

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func concatCombiner(existing, incoming []byte) []byte {
	return append(existing, incoming...)
}

func TestAggregatingBufferCombinesSameKey(t *testing.T) {
	buffer, err := newAggregatingBuffer(1, concatCombiner, 128, 16, 1<<20, 1<<20)
	assert.Nil(t, err)

	spills, err := buffer.AddRecord(0, []byte("k"), []byte("a"))
	assert.Nil(t, err)
	assert.Equal(t, 0, len(spills))

	spills, err = buffer.AddRecord(0, []byte("k"), []byte("b"))
	assert.Nil(t, err)
	assert.Equal(t, 0, len(spills))

	// One window entry: 8 bytes framing, 1 byte key, 2 bytes value.
	assert.EqualValues(t, 11, buffer.CollectionSizeInBytes())
	assert.EqualValues(t, 2, buffer.RecordsWritten())

	spills, err = buffer.Clear()
	assert.Nil(t, err)
	assert.Equal(t, 1, len(spills))

	records := decodeRecords(t, spills[0].Data)
	assert.Equal(t, 1, len(records))
	assert.Equal(t, []byte("k"), records[0].Key)
	assert.Equal(t, []byte("ab"), records[0].Value)

	assert.EqualValues(t, 0, buffer.CollectionSizeInBytes())
	assert.InDelta(t, 0.5, buffer.ReductionFactor(), 1e-9)
}

func TestAggregatingBufferEvictsColdKeys(t *testing.T) {
	buffer, err := newAggregatingBuffer(1, concatCombiner, 2, 16, 1<<20, 1<<20)
	assert.Nil(t, err)

	for i := 0; i < 3; i++ {
		_, err = buffer.AddRecord(0, []byte(fmt.Sprintf("k%d", i)), []byte("v"))
		assert.Nil(t, err)
	}

	// k0 cooled off and went to the staging buffer; the window holds
	// the other two.
	assert.EqualValues(t, 33, buffer.CollectionSizeInBytes())

	spills, err := buffer.Clear()
	assert.Nil(t, err)
	assert.Equal(t, 1, len(spills))
	assert.Equal(t, 3, len(decodeRecords(t, spills[0].Data)))
	assert.InDelta(t, 1.0, buffer.ReductionFactor(), 1e-9)
}

func TestAggregatingBufferKeepsFirstPartition(t *testing.T) {
	buffer, err := newAggregatingBuffer(2, concatCombiner, 128, 16, 1<<20, 1<<20)
	assert.Nil(t, err)

	_, err = buffer.AddRecord(0, []byte("k"), []byte("a"))
	assert.Nil(t, err)
	_, err = buffer.AddRecord(1, []byte("k"), []byte("b"))
	assert.Nil(t, err)

	spills, err := buffer.Clear()
	assert.Nil(t, err)
	assert.Equal(t, 1, len(spills))
	assert.Equal(t, 0, spills[0].Partition)

	records := decodeRecords(t, spills[0].Data)
	assert.Equal(t, []byte("ab"), records[0].Value)
}

func TestAggregatingBufferEvictionCanSpill(t *testing.T) {
	// A one-key window over a 10 byte drain threshold: the eviction
	// of k0 lands in the stage and immediately drains it.
	buffer, err := newAggregatingBuffer(1, concatCombiner, 1, 16, 1<<20, 10)
	assert.Nil(t, err)

	spills, err := buffer.AddRecord(0, []byte("a"), []byte("1"))
	assert.Nil(t, err)
	assert.Equal(t, 0, len(spills))

	spills, err = buffer.AddRecord(0, []byte("b"), []byte("2"))
	assert.Nil(t, err)
	assert.Equal(t, 1, len(spills))

	records := decodeRecords(t, spills[0].Data)
	assert.Equal(t, 1, len(records))
	assert.Equal(t, []byte("a"), records[0].Key)
}

func TestAggregatingBufferRejectsBadSetup(t *testing.T) {
	_, err := newAggregatingBuffer(1, nil, 128, 16, 1<<20, 1<<20)
	assert.NotNil(t, err)

	_, err = newAggregatingBuffer(1, concatCombiner, 0, 16, 1<<20, 1<<20)
	assert.NotNil(t, err)
}

func TestAggregatingBufferRejectsBadPartition(t *testing.T) {
	buffer, err := newAggregatingBuffer(2, concatCombiner, 128, 16, 1<<20, 1<<20)
	assert.Nil(t, err)

	_, err = buffer.AddRecord(2, []byte("k"), []byte("v"))
	assert.NotNil(t, err)
	assert.EqualValues(t, 0, buffer.RecordsWritten())
}
