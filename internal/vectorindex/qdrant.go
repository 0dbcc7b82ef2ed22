// Package vectorindex mirrors conversation embeddings into Qdrant and
// serves approximate nearest-neighbour searches from it.
package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const docIDKey = "doc_id"

// pointNamespace seeds the deterministic point ids derived from doc ids.
var pointNamespace = uuid.MustParse("6f1c3a52-8d7e-4c1b-9a5f-2e4d7b8c9a01")

// Config locates the Qdrant collection.
type Config struct {
	Host       string
	Port       string
	Collection string
}

// Qdrant is a VectorIndex backed by a Qdrant collection over gRPC.
type Qdrant struct {
	conn        *grpc.ClientConn
	collections qdrant.CollectionsClient
	points      qdrant.PointsClient
	collection  string
	log         *slog.Logger

	mu      sync.Mutex
	ensured bool
}

// Dial opens the gRPC connection. The collection is created lazily on the
// first upsert, once the vector width is known.
func Dial(cfg Config, log *slog.Logger) (*Qdrant, error) {
	addr := cfg.Host + ":" + cfg.Port
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connect qdrant %s: %w", addr, err)
	}
	return &Qdrant{
		conn:        conn,
		collections: qdrant.NewCollectionsClient(conn),
		points:      qdrant.NewPointsClient(conn),
		collection:  cfg.Collection,
		log:         log,
	}, nil
}

// Close releases the connection.
func (q *Qdrant) Close() error {
	return q.conn.Close()
}

// PointID maps a conversation id to its stable Qdrant point id.
func PointID(docID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(docID)).String()
}

func (q *Qdrant) ensureCollection(ctx context.Context, size int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ensured {
		return nil
	}

	_, err := q.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: q.collection})
	if err != nil {
		st, ok := status.FromError(err)
		if !ok || st.Code() != codes.NotFound {
			return fmt.Errorf("check collection: %w", err)
		}
		q.log.Info("creating collection", "collection", q.collection, "size", size)
		_, err = q.collections.Create(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: &qdrant.VectorsConfig{
				Config: &qdrant.VectorsConfig_Params{
					Params: &qdrant.VectorParams{
						Size:     uint64(size),
						Distance: qdrant.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}
	q.ensured = true
	return nil
}

// Upsert stores vector under the point derived from id.
func (q *Qdrant) Upsert(ctx context.Context, id string, vector []float32) error {
	if err := q.ensureCollection(ctx, len(vector)); err != nil {
		return err
	}
	wait := true
	_, err := q.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id: &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: PointID(id)}},
			Payload: map[string]*qdrant.Value{
				docIDKey: {Kind: &qdrant.Value_StringValue{StringValue: id}},
			},
			Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: vector}}},
		}},
	})
	if err != nil {
		return fmt.Errorf("upsert point: %w", err)
	}
	return nil
}

// Search returns conversation ids ranked by similarity. candidates sets the
// HNSW search breadth; limit is clamped to it. A collection that does not
// exist yet has no points, so it yields no ids.
func (q *Qdrant) Search(ctx context.Context, vector []float32, candidates, limit int, filterIDs []string) ([]string, error) {
	if limit > candidates {
		limit = candidates
	}
	ef := uint64(candidates)
	req := &qdrant.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          uint64(limit),
		Params:         &qdrant.SearchParams{HnswEf: &ef},
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
		Filter: idFilter(filterIDs),
	}

	resp, err := q.points.Search(ctx, req)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			q.log.Debug("collection missing, no results", "collection", q.collection)
			return []string{}, nil
		}
		return nil, fmt.Errorf("search points: %w", err)
	}

	ids := make([]string, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		if id := p.GetPayload()[docIDKey].GetStringValue(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func idFilter(ids []string) *qdrant.Filter {
	if ids == nil {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: PointID(id)}}
	}
	return &qdrant.Filter{
		Must: []*qdrant.Condition{{
			ConditionOneOf: &qdrant.Condition_HasId{HasId: &qdrant.HasIdCondition{HasId: pointIDs}},
		}},
	}
}
