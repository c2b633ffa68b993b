package rssnet

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/ShahRicha07/RemoteShuffleService/internal/pkg/rssblock"
)

const defaultClientTimeout = 30 * time.Second

// TCPClient streams blocks to a shuffle server over one framed TCP
// connection per upload. Start and finish wait for server acks; data
// blocks are fire-and-forget.
type TCPClient struct {
	addr    string
	timeout time.Duration
	id      string

	conn         net.Conn
	bytesWritten int64
}

func NewTCPClient(addr string) *TCPClient {
	timeout := viper.GetDuration("clientTimeout")
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	return &TCPClient{
		addr:    addr,
		timeout: timeout,
		id:      uuid.New().String(),
	}
}

func (c *TCPClient) StartUpload(task TaskAttempt, numMaps, numPartitions int) error {
	if c.conn != nil {
		return fmt.Errorf("upload to %s already started", c.addr)
	}
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return fmt.Errorf("dial shuffle server %s: %w", c.addr, err)
	}
	c.conn = conn
	log.Debugf("client %s connected to shuffle server %s for %s", c.id, c.addr, task)

	if err := writeMessage(conn, msgStartUpload, encodeStartUpload(task, numMaps, numPartitions)); err != nil {
		return err
	}
	return c.awaitAck()
}

func (c *TCPClient) WriteDataBlock(partition int, block *rssblock.Block) error {
	if c.conn == nil {
		return fmt.Errorf("upload to %s not started", c.addr)
	}
	if err := writeMessage(c.conn, msgDataBlock, encodeDataBlock(partition, block)); err != nil {
		return err
	}
	c.bytesWritten += int64(block.WireSize())
	return nil
}

func (c *TCPClient) FinishUpload() error {
	if c.conn == nil {
		return fmt.Errorf("upload to %s not started", c.addr)
	}
	if err := writeMessage(c.conn, msgFinishUpload, nil); err != nil {
		return err
	}
	// the finish ack guarantees the server consumed every block
	return c.awaitAck()
}

func (c *TCPClient) awaitAck() error {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}
	return awaitAck(c.conn)
}

func (c *TCPClient) ShuffleWriteBytes() int64 {
	return c.bytesWritten
}

func (c *TCPClient) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
