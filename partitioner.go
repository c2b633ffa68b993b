package rss

import "hash/fnv"

// Partitioner maps a record key to a partition in [0, numPartitions).
type Partitioner interface {
	Partition(key []byte, numPartitions int) int
}

// HashPartitioner spreads keys over partitions by FNV-1a hash. It is
// the default partitioner and matches what the shuffle readers expect
// when no custom partitioner was configured on the write side.
type HashPartitioner struct{}

func (HashPartitioner) Partition(key []byte, numPartitions int) int {
	if numPartitions <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32() % uint32(numPartitions))
}
