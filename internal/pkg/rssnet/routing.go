package rssnet

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ShahRicha07/RemoteShuffleService/internal/pkg/rssblock"
)

// RoutingClient spreads one upload across several shuffle backends.
// Partition p belongs to backend p mod N; lifecycle calls fan out to every
// backend.
type RoutingClient struct {
	clients []WriteClient
}

func NewRoutingClient(clients ...WriteClient) *RoutingClient {
	return &RoutingClient{clients: clients}
}

func (r *RoutingClient) StartUpload(task TaskAttempt, numMaps, numPartitions int) error {
	var group errgroup.Group
	for _, client := range r.clients {
		client := client
		group.Go(func() error {
			return client.StartUpload(task, numMaps, numPartitions)
		})
	}
	return group.Wait()
}

func (r *RoutingClient) WriteDataBlock(partition int, block *rssblock.Block) error {
	if len(r.clients) == 0 {
		return fmt.Errorf("routing client has no backends")
	}
	return r.clients[partition%len(r.clients)].WriteDataBlock(partition, block)
}

func (r *RoutingClient) FinishUpload() error {
	var group errgroup.Group
	for _, client := range r.clients {
		client := client
		group.Go(client.FinishUpload)
	}
	return group.Wait()
}

func (r *RoutingClient) ShuffleWriteBytes() int64 {
	var total int64
	for _, client := range r.clients {
		total += client.ShuffleWriteBytes()
	}
	return total
}

func (r *RoutingClient) Close() error {
	var group errgroup.Group
	for _, client := range r.clients {
		client := client
		group.Go(client.Close)
	}
	return group.Wait()
}
