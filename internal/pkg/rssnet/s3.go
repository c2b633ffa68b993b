package rssnet

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/mattetti/filebuffer"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/ShahRicha07/RemoteShuffleService/internal/pkg/rssblock"
)

// S3 rejects non-final multipart parts below 5 MiB.
const s3MinPartSize = 5 * 1024 * 1024

// S3Client writes each partition as one multipart object upload, staged in
// memory and flushed part by part, plus a JSON manifest once the upload
// finishes. minio:// addresses talk path-style to the configured endpoint.
type S3Client struct {
	s3Client *s3.S3
	bucket   string
	prefix   string

	task          TaskAttempt
	numMaps       int
	numPartitions int

	writers      map[int]*s3PartitionWriter
	bytesWritten int64
}

func NewS3Client(addr string) (*S3Client, error) {
	pathStyle := strings.HasPrefix(addr, "minio://")
	trimmed := strings.TrimPrefix(strings.TrimPrefix(addr, "minio://"), "s3://")

	bucket := trimmed
	prefix := ""
	if i := strings.Index(trimmed, "/"); i >= 0 {
		bucket = trimmed[:i]
		prefix = strings.Trim(trimmed[i:], "/")
	}
	if bucket == "" {
		return nil, fmt.Errorf("address %q names no bucket", addr)
	}

	os.Setenv("AWS_SDK_LOAD_CONFIG", "true")

	s3Config := aws.NewConfig()
	if pathStyle {
		endpoint := os.Getenv("MINIO_HOST")
		if endpoint == "" {
			endpoint = viper.GetString("minioHost")
		}
		if endpoint == "" {
			return nil, fmt.Errorf("address %q requires a minio endpoint (MINIO_HOST or minioHost)", addr)
		}
		s3Config = s3Config.
			WithEndpoint(endpoint).
			WithRegion("us-east-1").
			WithDisableSSL(true).
			WithS3ForcePathStyle(true).
			WithCredentials(credentials.NewChainCredentials([]credentials.Provider{
				&credentials.EnvProvider{},
				&credentials.StaticProvider{
					Value: credentials.Value{
						AccessKeyID:     viper.GetString("minioUser"),
						SecretAccessKey: viper.GetString("minioKey"),
					},
				},
			}))
	}
	if log.IsLevelEnabled(log.DebugLevel) {
		s3Config.WithCredentialsChainVerboseErrors(true)
	}

	//fail fast!
	newSession := session.Must(session.NewSession(s3Config))

	return &S3Client{
		s3Client: s3.New(newSession),
		bucket:   bucket,
		prefix:   prefix,
		writers:  make(map[int]*s3PartitionWriter),
	}, nil
}

func (c *S3Client) StartUpload(task TaskAttempt, numMaps, numPartitions int) error {
	c.task = task
	c.numMaps = numMaps
	c.numPartitions = numPartitions
	return nil
}

func (c *S3Client) attemptKey(name string) string {
	return path.Join(c.prefix, c.task.AppID,
		fmt.Sprintf("shuffle_%d", c.task.ShuffleID),
		fmt.Sprintf("map_%d_%d", c.task.MapID, c.task.AttemptID),
		name)
}

func (c *S3Client) WriteDataBlock(partition int, block *rssblock.Block) error {
	writer, ok := c.writers[partition]
	if !ok {
		writer = &s3PartitionWriter{
			client: c.s3Client,
			bucket: c.bucket,
			key:    c.attemptKey(fmt.Sprintf("partition_%05d.dat", partition)),
			buf:    filebuffer.New(nil),
		}
		if err := writer.create(); err != nil {
			return err
		}
		c.writers[partition] = writer
	}
	if err := writer.write(block.Marshal()); err != nil {
		return err
	}
	c.bytesWritten += int64(block.WireSize())
	return nil
}

func (c *S3Client) FinishUpload() error {
	lengths := make([]int64, c.numPartitions)
	for partition, writer := range c.writers {
		if err := writer.complete(); err != nil {
			return err
		}
		if partition < len(lengths) {
			lengths[partition] = writer.bytes
		}
	}

	manifest := struct {
		Task           TaskAttempt `json:"task"`
		NumMaps        int         `json:"numMaps"`
		NumPartitions  int         `json:"numPartitions"`
		PartitionBytes []int64     `json:"partitionBytes"`
	}{c.task, c.numMaps, c.numPartitions, lengths}

	raw, err := json.Marshal(manifest)
	if err != nil {
		return err
	}
	_, err = c.s3Client.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.attemptKey("_manifest.json")),
		Body:   filebuffer.New(raw),
	})
	if err != nil {
		return fmt.Errorf("write manifest for %s: %w", c.task, err)
	}
	log.Debugf("finished s3 upload for %s: %d partitions", c.task, len(c.writers))
	return nil
}

func (c *S3Client) ShuffleWriteBytes() int64 {
	return c.bytesWritten
}

// Close aborts whatever multipart uploads a failed run left open.
func (c *S3Client) Close() error {
	var firstErr error
	for _, writer := range c.writers {
		if writer.done {
			continue
		}
		_, err := writer.client.AbortMultipartUpload(&s3.AbortMultipartUploadInput{
			Bucket:   aws.String(writer.bucket),
			Key:      aws.String(writer.key),
			UploadId: aws.String(writer.uploadID),
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// s3PartitionWriter stages one partition object and flushes it to S3 in
// multipart chunks.
type s3PartitionWriter struct {
	client   *s3.S3
	bucket   string
	key      string
	uploadID string

	buf            *filebuffer.Buffer
	completedParts []*s3.CompletedPart
	partNumber     int64
	bytes          int64
	done           bool
}

func (w *s3PartitionWriter) create() error {
	output, err := w.client.CreateMultipartUpload(&s3.CreateMultipartUploadInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(w.key),
	})
	if err != nil {
		return fmt.Errorf("create multipart upload for %s: %w", w.key, err)
	}
	w.uploadID = *output.UploadId
	return nil
}

func (w *s3PartitionWriter) write(p []byte) error {
	if _, err := w.buf.Write(p); err != nil {
		return err
	}
	w.bytes += int64(len(p))
	if w.buf.Buff.Len() >= s3MinPartSize {
		return w.flush()
	}
	return nil
}

func (w *s3PartitionWriter) flush() error {
	if w.buf.Buff.Len() == 0 {
		return nil
	}
	if _, err := w.buf.Seek(0, io.SeekStart); err != nil {
		return err
	}
	w.partNumber++
	output, err := w.client.UploadPart(&s3.UploadPartInput{
		Bucket:     aws.String(w.bucket),
		Key:        aws.String(w.key),
		UploadId:   aws.String(w.uploadID),
		PartNumber: aws.Int64(w.partNumber),
		Body:       w.buf,
	})
	if err != nil {
		return fmt.Errorf("upload part %d of %s: %w", w.partNumber, w.key, err)
	}
	w.completedParts = append(w.completedParts, &s3.CompletedPart{
		ETag:       output.ETag,
		PartNumber: aws.Int64(w.partNumber),
	})
	w.buf = filebuffer.New(nil)
	return nil
}

func (w *s3PartitionWriter) complete() error {
	if err := w.flush(); err != nil {
		return err
	}
	_, err := w.client.CompleteMultipartUpload(&s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(w.bucket),
		Key:      aws.String(w.key),
		UploadId: aws.String(w.uploadID),
		MultipartUpload: &s3.CompletedMultipartUpload{
			Parts: w.completedParts,
		},
	})
	if err != nil {
		return fmt.Errorf("complete multipart upload for %s: %w", w.key, err)
	}
	w.done = true
	return nil
}
