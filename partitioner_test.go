package rss

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashPartitionerIsDeterministic(t *testing.T) {
	p := HashPartitioner{}
	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		first := p.Partition(key, 7)
		assert.True(t, first >= 0 && first < 7)
		assert.Equal(t, first, p.Partition(key, 7))
	}
}

func TestHashPartitionerSpreadsKeys(t *testing.T) {
	p := HashPartitioner{}
	counts := make([]int, 8)
	for i := 0; i < 1000; i++ {
		counts[p.Partition([]byte(fmt.Sprintf("record-%d", i)), 8)]++
	}
	for partition, count := range counts {
		assert.True(t, count > 0, "partition %d never chosen", partition)
	}
}

func TestHashPartitionerSinglePartition(t *testing.T) {
	p := HashPartitioner{}
	assert.Equal(t, 0, p.Partition([]byte("anything"), 1))
	assert.Equal(t, 0, p.Partition([]byte("anything"), 0))
}

func TestHashPartitionerEmptyKey(t *testing.T) {
	// FNV-1a of the empty key is the offset basis 2166136261.
	assert.Equal(t, int(2166136261%7), HashPartitioner{}.Partition(nil, 7))
}
