// Package vectors keeps a Qdrant index of pattern embeddings, one
// collection per field, so similar-content lookups can run against the
// vector store instead of a full pairwise scan.
package vectors

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nidhogg/semfield/internal/field"
)

// Embedder produces a vector for one content string.
type Embedder interface {
	Vector(content string) ([]float32, error)
}

// Index mirrors pattern vectors into Qdrant.
type Index struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
	embedder    Embedder
	dimension   uint64
	logger      *zap.Logger
}

// NewIndex dials the Qdrant gRPC endpoint.
func NewIndex(host string, port int, embedder Embedder, dimension int, logger *zap.Logger) (*Index, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &Index{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		embedder:    embedder,
		dimension:   uint64(dimension),
		logger:      logger,
	}, nil
}

func collectionName(fieldID string) string {
	return "semfield_" + fieldID
}

// ensureCollection creates the field's collection if it does not exist.
func (ix *Index) ensureCollection(ctx context.Context, fieldID string) error {
	name := collectionName(fieldID)
	_, err := ix.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err == nil {
		return nil
	}
	_, err = ix.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     ix.dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

// IndexPattern embeds and upserts one pattern into the field's collection.
func (ix *Index) IndexPattern(ctx context.Context, fieldID string, p field.Pattern) error {
	vector, err := ix.embedder.Vector(p.Content)
	if err != nil {
		return fmt.Errorf("embed pattern %s: %w", p.ID, err)
	}
	if err := ix.ensureCollection(ctx, fieldID); err != nil {
		return err
	}
	_, err = ix.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collectionName(fieldID),
		Points: []*pb.PointStruct{
			{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}}},
				Payload: map[string]*pb.Value{
					"content":  {Kind: &pb.Value_StringValue{StringValue: p.Content}},
					"field_id": {Kind: &pb.Value_StringValue{StringValue: fieldID}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert pattern %s: %w", p.ID, err)
	}
	return nil
}

// SyncField reindexes every active pattern of a field.
func (ix *Index) SyncField(ctx context.Context, f *field.Field) error {
	for _, p := range f.ActivePatterns() {
		if err := ix.IndexPattern(ctx, f.ID, p); err != nil {
			return err
		}
	}
	ix.logger.Debug("field indexed", zap.String("field", f.ID))
	return nil
}

// RemovePattern deletes one pattern from the field's collection.
func (ix *Index) RemovePattern(ctx context.Context, fieldID, patternID string) error {
	_, err := ix.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collectionName(fieldID),
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: patternID}}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete pattern %s: %w", patternID, err)
	}
	return nil
}

// Hit is one similar-content result.
type Hit struct {
	PatternID string  `json:"pattern_id"`
	Content   string  `json:"content"`
	Score     float32 `json:"score"`
}

// Similar finds the patterns nearest to the query content.
func (ix *Index) Similar(ctx context.Context, fieldID, query string, topK uint64) ([]Hit, error) {
	vector, err := ix.embedder.Vector(query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	resp, err := ix.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collectionName(fieldID),
		Vector:         vector,
		Limit:          topK,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collectionName(fieldID), err)
	}
	hits := make([]Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		h := Hit{PatternID: r.Id.GetUuid(), Score: r.Score}
		if v, ok := r.Payload["content"]; ok {
			if sv, ok := v.Kind.(*pb.Value_StringValue); ok {
				h.Content = sv.StringValue
			}
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// Close tears down the gRPC connection.
func (ix *Index) Close() error {
	return ix.conn.Close()
}
