package rssnet

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ShahRicha07/RemoteShuffleService/internal/pkg/rssblock"
)

func TestMemoryClientUpload(t *testing.T) {
	client := NewMemoryClient()
	RunWriteClientSuite(t, client, 3)

	assert.True(t, client.Finished())
	assert.Equal(t, 1, client.Closes())
	for partition := 0; partition < 3; partition++ {
		assert.Equal(t, 1, client.PartitionBlocks(partition))
		assert.NotEmpty(t, client.PartitionData(partition))
	}
}

func TestMemoryClientStateGuards(t *testing.T) {
	client := NewMemoryClient()

	err := client.WriteDataBlock(0, &rssblock.Block{})
	assert.NotNil(t, err)
	err = client.FinishUpload()
	assert.NotNil(t, err)

	task := TaskAttempt{AppID: "app"}
	assert.Nil(t, client.StartUpload(task, 1, 1))
	assert.NotNil(t, client.StartUpload(task, 1, 1))

	assert.Nil(t, client.FinishUpload())
	assert.NotNil(t, client.FinishUpload())
	assert.NotNil(t, client.WriteDataBlock(0, &rssblock.Block{}))
}

func TestMemoryClientRoundTrip(t *testing.T) {
	client := NewMemoryClient()
	assert.Nil(t, client.StartUpload(TaskAttempt{AppID: "app"}, 1, 1))

	framer, err := rssblock.NewFramer(rssblock.CodecZstd, 3)
	assert.Nil(t, err)
	payload := []byte("hello shuffle world")

	for i := 0; i < 2; i++ {
		block, err := framer.Frame(payload)
		assert.Nil(t, err)
		assert.Nil(t, client.WriteDataBlock(0, block))
	}
	assert.Nil(t, client.FinishUpload())

	reader := bytes.NewReader(client.PartitionData(0))
	for i := 0; i < 2; i++ {
		block, err := rssblock.Read(reader)
		assert.Nil(t, err)
		out, err := framer.Unframe(block)
		assert.Nil(t, err)
		assert.Equal(t, payload, out)
	}
	_, err = rssblock.Read(reader)
	assert.True(t, errors.Is(err, io.EOF))
}
