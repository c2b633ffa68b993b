// Package rssnet holds the write clients that move framed shuffle blocks
// from a writer to a remote shuffle backend. Backends are interchangeable
// behind WriteClient and selected by address scheme.
package rssnet

import (
	"fmt"
	"strings"

	"github.com/ShahRicha07/RemoteShuffleService/internal/pkg/rssblock"
)

// TaskAttempt identifies one map task attempt within a shuffle stage. It is
// the unit of upload: every client call belongs to exactly one attempt.
type TaskAttempt struct {
	AppID     string `json:"appId"`
	ShuffleID int32  `json:"shuffleId"`
	MapID     int32  `json:"mapId"`
	AttemptID int64  `json:"attemptId"`
}

func (t TaskAttempt) String() string {
	return fmt.Sprintf("%s_shuffle_%d_map_%d_%d", t.AppID, t.ShuffleID, t.MapID, t.AttemptID)
}

// WriteClient streams the framed blocks of a single map task attempt to a
// shuffle backend. Calls follow the upload protocol: StartUpload once, any
// number of WriteDataBlock calls, FinishUpload once, then Close. Close must
// also be safe after a failed upload.
type WriteClient interface {
	StartUpload(task TaskAttempt, numMaps, numPartitions int) error
	WriteDataBlock(partition int, block *rssblock.Block) error
	FinishUpload() error
	// ShuffleWriteBytes reports the wire bytes handed to the backend so far.
	ShuffleWriteBytes() int64
	Close() error
}

// InferClient builds a write client from an address. The scheme picks the
// backend; a comma-separated address list yields a routing client over one
// backend per entry.
func InferClient(addr string) (WriteClient, error) {
	if strings.Contains(addr, ",") {
		entries := strings.Split(addr, ",")
		clients := make([]WriteClient, 0, len(entries))
		for _, entry := range entries {
			client, err := InferClient(strings.TrimSpace(entry))
			if err != nil {
				return nil, err
			}
			clients = append(clients, client)
		}
		return NewRoutingClient(clients...), nil
	}

	switch {
	case strings.HasPrefix(addr, "rss://"):
		return NewTCPClient(strings.TrimPrefix(addr, "rss://")), nil
	case strings.HasPrefix(addr, "mem://"):
		return NewMemoryClient(), nil
	case strings.HasPrefix(addr, "s3://"), strings.HasPrefix(addr, "minio://"):
		return NewS3Client(addr)
	case strings.HasPrefix(addr, "redis://"):
		return NewRedisClient(addr)
	case strings.HasPrefix(addr, "amqp://"):
		return NewAMQPClient(addr)
	}
	return nil, fmt.Errorf("cannot infer write client from address %q", addr)
}
