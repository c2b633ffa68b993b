package rssnet

import (
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/ShahRicha07/RemoteShuffleService/internal/pkg/rssblock"
)

// AMQPClient publishes shuffle blocks to RabbitMQ: one durable queue per
// partition, identity headers on every delivery, and a completion message
// on a done queue that the shuffle server consumes.
type AMQPClient struct {
	url string

	conn *amqp.Connection
	ch   *amqp.Channel

	task          TaskAttempt
	numMaps       int
	numPartitions int
	bytesWritten  int64
}

func NewAMQPClient(url string) (*AMQPClient, error) {
	return &AMQPClient{url: url}, nil
}

func (c *AMQPClient) queueName(partition int) string {
	return fmt.Sprintf("rss.%s.shuffle_%d.p%d", c.task.AppID, c.task.ShuffleID, partition)
}

func (c *AMQPClient) doneQueueName() string {
	return fmt.Sprintf("rss.%s.shuffle_%d.done", c.task.AppID, c.task.ShuffleID)
}

func (c *AMQPClient) StartUpload(task TaskAttempt, numMaps, numPartitions int) error {
	if c.conn != nil {
		return fmt.Errorf("upload for %s already started", c.task)
	}
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq %s: %w", c.url, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open rabbitmq channel: %w", err)
	}
	c.conn = conn
	c.ch = ch
	c.task = task
	c.numMaps = numMaps
	c.numPartitions = numPartitions

	for partition := 0; partition < numPartitions; partition++ {
		if _, err := ch.QueueDeclare(c.queueName(partition), true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", c.queueName(partition), err)
		}
	}
	if _, err := ch.QueueDeclare(c.doneQueueName(), true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", c.doneQueueName(), err)
	}
	return nil
}

func (c *AMQPClient) WriteDataBlock(partition int, block *rssblock.Block) error {
	if c.ch == nil {
		return fmt.Errorf("upload not started")
	}
	err := c.ch.Publish("", c.queueName(partition), false, false, amqp.Publishing{
		ContentType:  "application/octet-stream",
		DeliveryMode: amqp.Persistent,
		Headers: amqp.Table{
			"mapId":     c.task.MapID,
			"attemptId": c.task.AttemptID,
		},
		Body: block.Marshal(),
	})
	if err != nil {
		return fmt.Errorf("publish block to %s: %w", c.queueName(partition), err)
	}
	c.bytesWritten += int64(block.WireSize())
	return nil
}

func (c *AMQPClient) FinishUpload() error {
	if c.ch == nil {
		return fmt.Errorf("upload not started")
	}
	body, err := json.Marshal(struct {
		Task          TaskAttempt `json:"task"`
		NumMaps       int         `json:"numMaps"`
		NumPartitions int         `json:"numPartitions"`
		Bytes         int64       `json:"bytes"`
	}{c.task, c.numMaps, c.numPartitions, c.bytesWritten})
	if err != nil {
		return err
	}
	err = c.ch.Publish("", c.doneQueueName(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish completion for %s: %w", c.task, err)
	}
	return nil
}

func (c *AMQPClient) ShuffleWriteBytes() int64 {
	return c.bytesWritten
}

func (c *AMQPClient) Close() error {
	if c.ch != nil {
		if err := c.ch.Close(); err != nil {
			log.Debugf("closing rabbitmq channel: %v", err)
		}
		c.ch = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
