package rssnet

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/ShahRicha07/RemoteShuffleService/internal/pkg/rssblock"
)

// Wire protocol spoken with a shuffle server: every message is a 1-byte
// type, a big-endian uint32 body length and the body. Start and finish are
// acked; data blocks are streamed without acks.
const (
	msgStartUpload  byte = 0x01
	msgDataBlock    byte = 0x02
	msgFinishUpload byte = 0x03
	msgAck          byte = 0x10
)

const msgHeaderSize = 5

// writeAll pushes buf to the connection, looping over short writes.
func writeAll(conn net.Conn, buf []byte) error {
	for written := 0; written < len(buf); {
		n, err := conn.Write(buf[written:])
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}

func writeMessage(conn net.Conn, msgType byte, body []byte) error {
	header := make([]byte, msgHeaderSize)
	header[0] = msgType
	binary.BigEndian.PutUint32(header[1:], uint32(len(body)))
	if err := writeAll(conn, header); err != nil {
		return err
	}
	return writeAll(conn, body)
}

func readMessage(conn net.Conn) (byte, []byte, error) {
	header := make([]byte, msgHeaderSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		return 0, nil, err
	}
	body := make([]byte, binary.BigEndian.Uint32(header[1:]))
	if _, err := io.ReadFull(conn, body); err != nil {
		return 0, nil, err
	}
	return header[0], body, nil
}

func awaitAck(conn net.Conn) error {
	msgType, _, err := readMessage(conn)
	if err != nil {
		return err
	}
	if msgType != msgAck {
		return fmt.Errorf("expected ack, got message type 0x%02x", msgType)
	}
	return nil
}

// encodeStartUpload lays out a start-upload body: length-prefixed app id,
// shuffle id, map id, attempt id, map count and partition count.
func encodeStartUpload(task TaskAttempt, numMaps, numPartitions int) []byte {
	app := []byte(task.AppID)
	body := make([]byte, 0, 4+len(app)+24)
	var scratch [8]byte

	binary.BigEndian.PutUint32(scratch[:4], uint32(len(app)))
	body = append(body, scratch[:4]...)
	body = append(body, app...)
	binary.BigEndian.PutUint32(scratch[:4], uint32(task.ShuffleID))
	body = append(body, scratch[:4]...)
	binary.BigEndian.PutUint32(scratch[:4], uint32(task.MapID))
	body = append(body, scratch[:4]...)
	binary.BigEndian.PutUint64(scratch[:], uint64(task.AttemptID))
	body = append(body, scratch[:]...)
	binary.BigEndian.PutUint32(scratch[:4], uint32(numMaps))
	body = append(body, scratch[:4]...)
	binary.BigEndian.PutUint32(scratch[:4], uint32(numPartitions))
	body = append(body, scratch[:4]...)
	return body
}

func decodeStartUpload(body []byte) (TaskAttempt, int, int, error) {
	if len(body) < 4 {
		return TaskAttempt{}, 0, 0, fmt.Errorf("start upload body of %d bytes is too short", len(body))
	}
	appLen := int(binary.BigEndian.Uint32(body[:4]))
	rest := body[4:]
	if len(rest) != appLen+24 {
		return TaskAttempt{}, 0, 0, fmt.Errorf("start upload body length mismatch: app id %d bytes, body %d", appLen, len(body))
	}
	task := TaskAttempt{AppID: string(rest[:appLen])}
	rest = rest[appLen:]
	task.ShuffleID = int32(binary.BigEndian.Uint32(rest[0:4]))
	task.MapID = int32(binary.BigEndian.Uint32(rest[4:8]))
	task.AttemptID = int64(binary.BigEndian.Uint64(rest[8:16]))
	numMaps := int(binary.BigEndian.Uint32(rest[16:20]))
	numPartitions := int(binary.BigEndian.Uint32(rest[20:24]))
	return task, numMaps, numPartitions, nil
}

// encodeDataBlock lays out a data-block body: the partition id followed by
// the marshalled block.
func encodeDataBlock(partition int, block *rssblock.Block) []byte {
	body := make([]byte, 4, 4+block.WireSize())
	binary.BigEndian.PutUint32(body, uint32(partition))
	return append(body, block.Marshal()...)
}

func decodeDataBlock(body []byte) (int, *rssblock.Block, error) {
	if len(body) < 4 {
		return 0, nil, fmt.Errorf("data block body of %d bytes is too short", len(body))
	}
	partition := int(binary.BigEndian.Uint32(body[:4]))
	block, err := rssblock.Unmarshal(body[4:])
	return partition, block, err
}
