package rssnet

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ShahRicha07/RemoteShuffleService/internal/pkg/rssblock"
)

func mockPayload(size int) []byte {
	payload := make([]byte, size)
	rand.Read(payload)
	return payload
}

// RunWriteClientSuite drives one complete upload against a client
// implementation: start, one block per partition, finish, byte accounting,
// close. Backend tests share it.
func RunWriteClientSuite(t *testing.T, client WriteClient, numPartitions int) {
	task := TaskAttempt{
		AppID:     uuid.New().String(),
		ShuffleID: 1,
		MapID:     2,
		AttemptID: 3,
	}

	framer, err := rssblock.NewFramer(rssblock.CodecLZ4, 0)
	if err != nil {
		t.Fatalf("failed to build framer %+v", err)
	}

	err = client.StartUpload(task, 4, numPartitions)
	if err != nil {
		t.Fatalf("failed to start upload %+v", err)
	}

	var wireBytes int64
	for partition := 0; partition < numPartitions; partition++ {
		block, err := framer.Frame(mockPayload(1024 + rand.Intn(1024)))
		assert.Nil(t, err)
		assert.Nil(t, client.WriteDataBlock(partition, block))
		wireBytes += int64(block.WireSize())
	}

	assert.Nil(t, client.FinishUpload())
	assert.EqualValues(t, wireBytes, client.ShuffleWriteBytes())
	assert.Nil(t, client.Close())
}
