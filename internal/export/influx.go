package export

import (
	"context"
	"fmt"
	"log"
	"os"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/barolog/barolog/internal/reading"
)

// Measurement is the InfluxDB measurement readings are written to.
const Measurement = "pressure"

// influxChunk bounds the number of points per write request.
const influxChunk = 1000

// Influx writes readings to an InfluxDB v2 bucket.
type Influx struct {
	client influxdb2.Client
	org    string
	bucket string
	logger *log.Logger
}

// NewInflux creates an exporter for the given server, org and bucket.
//
// If logger is nil, a default logger writing to stderr is used.
func NewInflux(url, token, org, bucket string, logger *log.Logger) (*Influx, error) {
	if url == "" || org == "" || bucket == "" {
		return nil, fmt.Errorf("influx url, org and bucket are required")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[export] ", log.LstdFlags)
	}
	return &Influx{
		client: influxdb2.NewClient(url, token),
		org:    org,
		bucket: bucket,
		logger: logger,
	}, nil
}

// Point converts a reading into a pressure point tagged by device and
// owner.
func Point(r *reading.Reading) *write.Point {
	tags := map[string]string{}
	if r.DeviceID != "" {
		tags["device_id"] = r.DeviceID
	}
	if r.DeviceName != "" {
		tags["device_name"] = r.DeviceName
	}
	if owner := r.Owner(); owner != "" {
		tags["user_id"] = owner
	}

	return influxdb2.NewPoint(
		Measurement,
		tags,
		map[string]interface{}{"hpa": r.Value},
		r.Time(),
	)
}

// Export writes every reading and returns how many were written.
func (e *Influx) Export(ctx context.Context, readings []*reading.Reading) (int, error) {
	writeAPI := e.client.WriteAPIBlocking(e.org, e.bucket)

	written := 0
	for i := 0; i < len(readings); i += influxChunk {
		end := min(i+influxChunk, len(readings))

		points := make([]*write.Point, 0, end-i)
		for _, r := range readings[i:end] {
			points = append(points, Point(r))
		}

		if err := writeAPI.WritePoint(ctx, points...); err != nil {
			return written, fmt.Errorf("error writing to InfluxDB: %w", err)
		}
		written += len(points)
	}

	e.logger.Printf("Wrote %d points to InfluxDB bucket %s", written, e.bucket)
	return written, nil
}

// Close releases the client.
func (e *Influx) Close() {
	e.client.Close()
}
