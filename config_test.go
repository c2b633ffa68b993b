package rss

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/ShahRicha07/RemoteShuffleService/internal/pkg/rssblock"
	"github.com/ShahRicha07/RemoteShuffleService/internal/pkg/rssnet"
)

func TestConfigDefaults(t *testing.T) {
	Init()

	assert.Equal(t, "mem://", viper.GetString("writeClient"))
	assert.Equal(t, "lz4", viper.GetString("compressionCodec"))
	assert.Equal(t, "buffered", viper.GetString("writeBufferStrategy"))
	assert.Equal(t, 32*1024, viper.GetInt("writeBufferSize"))
	assert.EqualValues(t, 1024*1024, viper.GetInt64("writeBufferMax"))
	assert.EqualValues(t, 64*1024*1024, viper.GetInt64("spillThreshold"))
	assert.Equal(t, 65536, viper.GetInt("aggregationMaxKeys"))
	assert.Equal(t, 30*time.Second, viper.GetDuration("clientTimeout"))
	assert.False(t, viper.GetBool("mapSideAggregation"))

	// Short aliases resolve to the real keys.
	assert.Equal(t, viper.GetString("writeClient"), viper.GetString("c"))
	assert.Equal(t, viper.GetBool("verbose"), viper.GetBool("v"))
}

func TestWriterConfigOptions(t *testing.T) {
	cfg := newWriterConfig()
	assert.Equal(t, rssblock.CodecLZ4, cfg.codec)
	assert.IsType(t, HashPartitioner{}, cfg.partitioner)

	WithCodec("ZSTD")(cfg)
	assert.Equal(t, rssblock.CodecZstd, cfg.codec)

	WithCompressionLevel(7)(cfg)
	assert.Equal(t, 7, cfg.compressionLevel)

	WithBufferSizes(64, 4096)(cfg)
	assert.Equal(t, 64, cfg.writeBufferSize)
	assert.EqualValues(t, 4096, cfg.writeBufferMax)

	WithSpillThreshold(1 << 16)(cfg)
	assert.EqualValues(t, 1<<16, cfg.spillThreshold)

	assert.False(t, cfg.mapSideAggregation)
	WithCombiner(concatCombiner)(cfg)
	assert.True(t, cfg.mapSideAggregation)

	WithPartitioner(tablePartitioner{})(cfg)
	assert.IsType(t, tablePartitioner{}, cfg.partitioner)
}

func TestBuildBufferStrategies(t *testing.T) {
	cfg := newWriterConfig()

	buffer, err := cfg.buildBuffer(4)
	assert.Nil(t, err)
	assert.IsType(t, &recordBuffer{}, buffer)

	WithStrategy("direct")(cfg)
	buffer, err = cfg.buildBuffer(4)
	assert.Nil(t, err)
	assert.IsType(t, &directBuffer{}, buffer)

	WithStrategy("adaptive")(cfg)
	_, err = cfg.buildBuffer(4)
	assert.NotNil(t, err)

	WithCombiner(concatCombiner)(cfg)
	buffer, err = cfg.buildBuffer(4)
	assert.Nil(t, err)
	assert.IsType(t, &aggregatingBuffer{}, buffer)
}

func TestBuildClient(t *testing.T) {
	cfg := newWriterConfig()

	client, err := cfg.buildClient()
	assert.Nil(t, err)
	assert.IsType(t, &rssnet.MemoryClient{}, client)

	mock := &mockWriteClient{}
	WithWriteClient(mock)(cfg)
	client, err = cfg.buildClient()
	assert.Nil(t, err)
	assert.Equal(t, mock, client)

	cfg = newWriterConfig()
	WithWriteClientAddr("ftp://nope")(cfg)
	_, err = cfg.buildClient()
	assert.NotNil(t, err)
}

func TestNewWriterRejectsBadSetup(t *testing.T) {
	_, err := NewWriter(testTask(), 1, 0)
	assert.NotNil(t, err)

	_, err = NewWriter(testTask(), 1, 2, WithCodec("snappy"))
	assert.NotNil(t, err)

	_, err = NewWriter(testTask(), 1, 2, WithCodec("zstd"), WithCompressionLevel(99))
	assert.NotNil(t, err)

	_, err = NewWriter(testTask(), 1, 2, WithCombiner(nil))
	assert.NotNil(t, err)

	_, err = NewWriter(testTask(), 1, 2, WithWriteClientAddr("ftp://nope"))
	assert.NotNil(t, err)
}
