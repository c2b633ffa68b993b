package main

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/semaphore"
	pb "gopkg.in/cheggaaa/pb.v1"

	rss "github.com/ShahRicha07/RemoteShuffleService"
)

var numWriters = flag.IntP("writers", "w", 4, "Number of map tasks to simulate")
var numRecords = flag.IntP("records", "n", 100000, "Records per writer")
var valueSize = flag.IntP("value-size", "s", 128, "Value size in bytes")
var numPartitions = flag.IntP("partitions", "p", 8, "Number of shuffle partitions")
var codec = flag.String("codec", "lz4", "Block compression codec [lz4,zstd]")
var level = flag.Int("level", 3, "zstd compression level")
var target = flag.StringP("target", "t", "", "Write client address (overrides configured writeClient)")
var parallelism = flag.Int("parallelism", 8, "Maximum writers in flight")
var verbose = flag.BoolP("verbose", "v", false, "Output verbose logs")

// syntheticIterator produces a fixed number of records with random
// values, deterministic per seed.
type syntheticIterator struct {
	remaining int
	valueSize int
	rng       *rand.Rand
	record    rss.Record
}

func newSyntheticIterator(records, valueSize int, seed int64) *syntheticIterator {
	return &syntheticIterator{
		remaining: records,
		valueSize: valueSize,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

func (s *syntheticIterator) Next() bool {
	if s.remaining == 0 {
		return false
	}
	s.remaining--
	value := make([]byte, s.valueSize)
	s.rng.Read(value)
	s.record = rss.Record{
		Key:   []byte(fmt.Sprintf("key-%d", s.rng.Intn(1<<20))),
		Value: value,
	}
	return true
}

func (s *syntheticIterator) Record() rss.Record { return s.record }

func (s *syntheticIterator) Err() error { return nil }

func runWriter(appID string, mapID int) (*rss.Report, error) {
	task := rss.TaskAttempt{
		AppID:     appID,
		ShuffleID: 0,
		MapID:     int32(mapID),
		AttemptID: time.Now().UnixNano(),
	}

	options := []rss.Option{
		rss.WithCodec(*codec),
		rss.WithCompressionLevel(*level),
	}
	if *target != "" {
		options = append(options, rss.WithWriteClientAddr(*target))
	}

	writer, err := rss.NewWriter(task, *numWriters, *numPartitions, options...)
	if err != nil {
		return nil, err
	}

	_, err = writer.Write(newSyntheticIterator(*numRecords, *valueSize, int64(mapID)+1))
	if err != nil {
		_, _ = writer.Stop(false)
		return nil, err
	}

	report, err := writer.Stop(true)
	writer.AwaitClose()
	return report, err
}

func main() {
	rss.Init()
	flag.Parse()
	viper.BindPFlags(flag.CommandLine)

	if *verbose || viper.GetBool("verbose") {
		log.SetLevel(log.DebugLevel)
	}

	appID := fmt.Sprintf("bench-%s", uuid.New().String()[:8])
	fmt.Printf("Shuffle write benchmark: app %s, %d writers x %d records, %d partitions\n",
		appID, *numWriters, *numRecords, *numPartitions)

	bar := pb.New(*numWriters).Prefix("Write").Start()
	sem := semaphore.NewWeighted(int64(*parallelism))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var totalBytes, totalRecords int64
	failures := 0

	start := time.Now()
	for mapID := 0; mapID < *numWriters; mapID++ {
		sem.Acquire(context.Background(), 1)
		wg.Add(1)
		go func(mapID int) {
			defer wg.Done()
			defer sem.Release(1)
			defer bar.Increment()
			report, err := runWriter(appID, mapID)
			if err != nil {
				log.Errorf("Error when running writer %d: %s", mapID, err)
				mu.Lock()
				failures++
				mu.Unlock()
				return
			}
			mu.Lock()
			totalBytes += report.Metrics.BytesWritten
			totalRecords += report.Metrics.RecordsWritten
			mu.Unlock()
		}(mapID)
	}
	wg.Wait()
	bar.Finish()

	elapsed := time.Since(start)
	fmt.Printf("Wrote %s records, %s in %s (%s/s)\n",
		humanize.Comma(totalRecords),
		humanize.Bytes(uint64(totalBytes)),
		elapsed,
		humanize.Bytes(uint64(float64(totalBytes)/elapsed.Seconds())))
	if failures > 0 {
		log.Fatalf("%d of %d writers failed", failures, *numWriters)
	}
}
