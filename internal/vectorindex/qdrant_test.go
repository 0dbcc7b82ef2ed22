package vectorindex

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fakeCollections implements the calls ensureCollection makes; any other
// method panics on the nil embedded interface.
type fakeCollections struct {
	qdrant.CollectionsClient
	exists  bool
	gets    int
	created []*qdrant.CreateCollection
}

func (f *fakeCollections) Get(context.Context, *qdrant.GetCollectionInfoRequest, ...grpc.CallOption) (*qdrant.GetCollectionInfoResponse, error) {
	f.gets++
	if !f.exists {
		return nil, status.Error(codes.NotFound, "collection not found")
	}
	return &qdrant.GetCollectionInfoResponse{}, nil
}

func (f *fakeCollections) Create(_ context.Context, in *qdrant.CreateCollection, _ ...grpc.CallOption) (*qdrant.CollectionOperationResponse, error) {
	f.created = append(f.created, in)
	f.exists = true
	return &qdrant.CollectionOperationResponse{Result: true}, nil
}

type fakePoints struct {
	qdrant.PointsClient
	upserts   []*qdrant.UpsertPoints
	searches  []*qdrant.SearchPoints
	result    []*qdrant.ScoredPoint
	searchErr error
}

func (f *fakePoints) Upsert(_ context.Context, in *qdrant.UpsertPoints, _ ...grpc.CallOption) (*qdrant.PointsOperationResponse, error) {
	f.upserts = append(f.upserts, in)
	return &qdrant.PointsOperationResponse{}, nil
}

func (f *fakePoints) Search(_ context.Context, in *qdrant.SearchPoints, _ ...grpc.CallOption) (*qdrant.SearchResponse, error) {
	f.searches = append(f.searches, in)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &qdrant.SearchResponse{Result: f.result}, nil
}

func newTestIndex(c *fakeCollections, p *fakePoints) *Qdrant {
	return &Qdrant{
		collections: c,
		points:      p,
		collection:  "conversations",
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func scored(docID string) *qdrant.ScoredPoint {
	return &qdrant.ScoredPoint{
		Payload: map[string]*qdrant.Value{
			docIDKey: {Kind: &qdrant.Value_StringValue{StringValue: docID}},
		},
	}
}

func TestPointID_Deterministic(t *testing.T) {
	a := PointID("conv-1")
	assert.Equal(t, a, PointID("conv-1"))
	assert.NotEqual(t, a, PointID("conv-2"))
	assert.Len(t, a, 36)
}

func TestIDFilter(t *testing.T) {
	assert.Nil(t, idFilter(nil))

	f := idFilter([]string{"a", "b"})
	require.NotNil(t, f)
	require.Len(t, f.Must, 1)
	hasID, ok := f.Must[0].ConditionOneOf.(*qdrant.Condition_HasId)
	require.True(t, ok)
	require.Len(t, hasID.HasId.HasId, 2)
	assert.Equal(t, PointID("b"), hasID.HasId.HasId[1].GetUuid())
}

func TestUpsert_CreatesCollectionOnce(t *testing.T) {
	cols := &fakeCollections{}
	pts := &fakePoints{}
	q := newTestIndex(cols, pts)
	ctx := context.Background()

	require.NoError(t, q.Upsert(ctx, "conv-1", []float32{1, 0, 0}))
	require.NoError(t, q.Upsert(ctx, "conv-2", []float32{0, 1, 0}))

	require.Len(t, cols.created, 1)
	assert.Equal(t, "conversations", cols.created[0].CollectionName)
	assert.Equal(t, uint64(3), cols.created[0].GetVectorsConfig().GetParams().GetSize())
	assert.Equal(t, 1, cols.gets)

	require.Len(t, pts.upserts, 2)
	p := pts.upserts[1].Points[0]
	assert.Equal(t, PointID("conv-2"), p.GetId().GetUuid())
	assert.Equal(t, "conv-2", p.GetPayload()[docIDKey].GetStringValue())
	assert.Equal(t, []float32{0, 1, 0}, p.GetVectors().GetVector().GetData())
}

func TestUpsert_ExistingCollectionIsNotRecreated(t *testing.T) {
	cols := &fakeCollections{exists: true}
	q := newTestIndex(cols, &fakePoints{})

	require.NoError(t, q.Upsert(context.Background(), "conv-1", []float32{1}))
	assert.Empty(t, cols.created)
}

func TestSearch_ReturnsPayloadIDs(t *testing.T) {
	pts := &fakePoints{result: []*qdrant.ScoredPoint{scored("b"), {}, scored("a")}}
	q := newTestIndex(&fakeCollections{exists: true}, pts)

	ids, err := q.Search(context.Background(), []float32{1, 0}, 10, 50, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids)

	require.Len(t, pts.searches, 1)
	req := pts.searches[0]
	assert.Equal(t, uint64(10), req.Limit, "limit is clamped to candidates")
	assert.Equal(t, uint64(10), req.GetParams().GetHnswEf())
	assert.NotNil(t, req.Filter)
}

func TestSearch_MissingCollectionIsEmpty(t *testing.T) {
	pts := &fakePoints{searchErr: status.Error(codes.NotFound, "Collection `conversations` doesn't exist!")}
	q := newTestIndex(&fakeCollections{}, pts)

	ids, err := q.Search(context.Background(), []float32{1, 0}, 100, 20, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSearch_OtherErrorsPropagate(t *testing.T) {
	pts := &fakePoints{searchErr: status.Error(codes.Unavailable, "connection refused")}
	q := newTestIndex(&fakeCollections{}, pts)

	_, err := q.Search(context.Background(), []float32{1, 0}, 100, 20, nil)
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(errors.Unwrap(err)))
}
