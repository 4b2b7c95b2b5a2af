// Package qdrant backs memory segments with a Qdrant server over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/nontawat9304/mali-chat/pkg/vector"
)

const (
	// CollectionPrefix namespaces mali collections inside a shared Qdrant.
	CollectionPrefix = "mali_"

	payloadDocID   = "doc_id"
	payloadContent = "content"

	defaultPort = 6334
)

// pointNamespace derives stable point UUIDs from document IDs, since Qdrant
// only accepts UUID or integer point IDs.
var pointNamespace = uuid.MustParse("9b1f3c62-4d0e-4a8a-9d0e-6d616c692d71")

// PointID maps a document ID to its Qdrant point UUID.
func PointID(docID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(docID)).String()
}

// NewClient dials Qdrant at target, a "host" or "host:port" string.
func NewClient(target, apiKey string) (*qdrant.Client, error) {
	host, port := target, defaultPort
	if h, p, err := net.SplitHostPort(target); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port %q: %w", p, err)
		}
		host, port = h, n
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant at %s: %w", vector.ErrConnection, target, err)
	}
	return client, nil
}

// Config holds per-segment settings.
type Config struct {
	Segment    string
	Dimensions uint
}

// Driver implements vector.Driver over one Qdrant collection.
type Driver struct {
	client     *qdrant.Client
	collection string
	dimensions uint64
	logger     *slog.Logger
}

// NewDriver ensures the segment collection exists.
func NewDriver(ctx context.Context, client *qdrant.Client, c Config, logger *slog.Logger) (*Driver, error) {
	if client == nil {
		return nil, errors.New("qdrant client is required")
	}
	if c.Segment == "" {
		return nil, errors.New("qdrant segment name is required")
	}
	if c.Dimensions == 0 {
		return nil, errors.New("embedding dimensions are required")
	}

	d := &Driver{
		client:     client,
		collection: CollectionPrefix + c.Segment,
		dimensions: uint64(c.Dimensions),
		logger:     logger,
	}
	if err := d.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) ensureCollection(ctx context.Context) error {
	exists, err := d.client.CollectionExists(ctx, d.collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection %s: %w", vector.ErrConnection, d.collection, err)
	}
	if exists {
		return nil
	}

	err = d.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: d.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     d.dimensions,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", d.collection, err)
	}
	d.logger.Debug("created qdrant collection", "collection", d.collection, "dimensions", d.dimensions)
	return nil
}

// Add upserts documents.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		payload := map[string]any{
			payloadDocID:   doc.ID,
			payloadContent: doc.Content,
		}
		for k, v := range doc.Metadata {
			payload[k] = v
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(doc.ID)),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	wait := true
	_, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting into %s: %w", d.collection, err)
	}
	return nil
}

// Query returns up to topK points by cosine score.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	limit := uint64(topK)
	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", d.collection, err)
	}

	results := make([]vector.QueryResult, 0, len(points))
	for _, p := range points {
		r := vector.QueryResult{
			Document: vector.Document{Metadata: map[string]string{}},
			Score:    p.GetScore(),
		}
		for k, v := range p.GetPayload() {
			switch k {
			case payloadDocID:
				r.ID = v.GetStringValue()
			case payloadContent:
				r.Content = v.GetStringValue()
			default:
				r.Metadata[k] = v.GetStringValue()
			}
		}
		results = append(results, r)
	}
	return results, nil
}

// Delete removes documents by ID.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewID(PointID(id)))
	}

	wait := true
	_, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", d.collection, err)
	}
	return nil
}

// Reset drops and recreates the collection.
func (d *Driver) Reset(ctx context.Context) error {
	if err := d.client.DeleteCollection(ctx, d.collection); err != nil {
		return fmt.Errorf("dropping %s: %w", d.collection, err)
	}
	return d.ensureCollection(ctx)
}

// Close is a no-op; the client is shared across segments.
func (d *Driver) Close() error {
	return nil
}
