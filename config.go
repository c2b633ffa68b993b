package rss

import (
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/ShahRicha07/RemoteShuffleService/internal/pkg/rssblock"
	"github.com/ShahRicha07/RemoteShuffleService/internal/pkg/rssnet"
)

var configOnce sync.Once

func loadConfig() {
	configOnce.Do(func() {
		viper.SetConfigName("rssrc")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.rss")

		setupDefaults()

		err := viper.ReadInConfig()
		if err != nil {
			log.Debugf("Config Read %+v", err)
		}

		viper.SetEnvPrefix("rss")
		viper.AutomaticEnv()

		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
	})
}

// Init loads the writer configuration from rssrc files, RSS_*
// environment variables and built-in defaults. Writers trigger it on
// construction; calling it up front is only needed to surface config
// problems early.
func Init() {
	loadConfig()
}

func setupDefaults() {
	defaultSettings := map[string]interface{}{
		"writeClient":      "mem://",
		"compressionCodec": "lz4",
		"compressionLevel": 3, // only consulted by zstd

		"writeBufferSize":     32 * 1024,        // Initial per-partition buffer is 32Kb
		"writeBufferMax":      1024 * 1024,      // A single partition spills at 1Mb
		"spillThreshold":      64 * 1024 * 1024, // The whole collection drains at 64Mb
		"writeBufferStrategy": "buffered",

		"mapSideAggregation": false,
		"aggregationMaxKeys": 65536, // Size of the aggregation window

		"clientTimeout": "30s",

		// Minio config, used when blocks go to a minio:// endpoint
		"minioHost": "",
		"minioUser": "",
		"minioKey":  "",

		"verbose": false,
	}
	for key, value := range defaultSettings {
		viper.SetDefault(key, value)
	}

	aliases := map[string]string{
		"verbose":     "v",
		"writeClient": "c",
	}
	for key, alias := range aliases {
		viper.RegisterAlias(alias, key)
	}
}

type writerConfig struct {
	clientAddr string
	client     rssnet.WriteClient

	codec            rssblock.Codec
	compressionLevel int

	strategy        string
	writeBufferSize int
	writeBufferMax  int64
	spillThreshold  int64

	mapSideAggregation bool
	aggregationMaxKeys int
	combiner           CombineFunc

	partitioner Partitioner
}

func newWriterConfig() *writerConfig {
	loadConfig()
	return &writerConfig{
		clientAddr:         viper.GetString("writeClient"),
		codec:              rssblock.Codec(strings.ToLower(viper.GetString("compressionCodec"))),
		compressionLevel:   viper.GetInt("compressionLevel"),
		strategy:           viper.GetString("writeBufferStrategy"),
		writeBufferSize:    viper.GetInt("writeBufferSize"),
		writeBufferMax:     viper.GetInt64("writeBufferMax"),
		spillThreshold:     viper.GetInt64("spillThreshold"),
		mapSideAggregation: viper.GetBool("mapSideAggregation"),
		aggregationMaxKeys: viper.GetInt("aggregationMaxKeys"),
		partitioner:        HashPartitioner{},
	}
}

// Option overrides a single writer setting loaded from the config.
type Option func(*writerConfig)

// WithWriteClient injects an already constructed write client. The
// writer takes ownership and closes it on Stop.
func WithWriteClient(client rssnet.WriteClient) Option {
	return func(c *writerConfig) {
		c.client = client
	}
}

// WithWriteClientAddr points the writer at a shuffle backend address,
// overriding the configured one.
func WithWriteClientAddr(addr string) Option {
	return func(c *writerConfig) {
		c.clientAddr = addr
	}
}

// WithCodec selects the block compression codec, lz4 or zstd.
func WithCodec(codec string) Option {
	return func(c *writerConfig) {
		c.codec = rssblock.Codec(strings.ToLower(codec))
	}
}

// WithCompressionLevel sets the zstd compression level.
func WithCompressionLevel(level int) Option {
	return func(c *writerConfig) {
		c.compressionLevel = level
	}
}

// WithPartitioner replaces the default hash partitioner.
func WithPartitioner(p Partitioner) Option {
	return func(c *writerConfig) {
		c.partitioner = p
	}
}

// WithCombiner enables map-side aggregation with the given combine
// function.
func WithCombiner(combine CombineFunc) Option {
	return func(c *writerConfig) {
		c.combiner = combine
		c.mapSideAggregation = true
	}
}

// WithStrategy selects the write buffer strategy, buffered or direct.
func WithStrategy(strategy string) Option {
	return func(c *writerConfig) {
		c.strategy = strategy
	}
}

// WithBufferSizes tunes the initial per-partition buffer size and the
// per-partition spill ceiling.
func WithBufferSizes(initial int, partitionMax int64) Option {
	return func(c *writerConfig) {
		c.writeBufferSize = initial
		c.writeBufferMax = partitionMax
	}
}

// WithSpillThreshold sets the total buffered bytes that force a full
// drain.
func WithSpillThreshold(threshold int64) Option {
	return func(c *writerConfig) {
		c.spillThreshold = threshold
	}
}

func (c *writerConfig) buildBuffer(numPartitions int) (Buffer, error) {
	if c.mapSideAggregation {
		return newAggregatingBuffer(numPartitions, c.combiner, c.aggregationMaxKeys, c.writeBufferSize, c.writeBufferMax, c.spillThreshold)
	}
	switch c.strategy {
	case "", "buffered":
		return newRecordBuffer(numPartitions, c.writeBufferSize, c.writeBufferMax, c.spillThreshold), nil
	case "direct":
		return newDirectBuffer(numPartitions), nil
	default:
		return nil, fmt.Errorf("unknown write buffer strategy %q", c.strategy)
	}
}

func (c *writerConfig) buildClient() (rssnet.WriteClient, error) {
	if c.client != nil {
		return c.client, nil
	}
	return rssnet.InferClient(c.clientAddr)
}
