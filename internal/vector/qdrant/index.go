// Package qdrant implements vector.CandidateIndex on a Qdrant collection.
package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/TylerDurden17/support-agent/internal/models"
)

const (
	payloadChunkID = "chunk_id"
	upsertBatch    = 256
)

// pointsAPI and collectionsAPI are the subsets of the generated gRPC clients we use.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Index proposes search candidates from a Qdrant collection.
type Index struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
}

// New connects to Qdrant's gRPC endpoint at addr. The connection is established lazily.
func New(addr, collection string) (*Index, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", addr, err)
	}
	return &Index{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

func newWithClients(points pointsAPI, collections collectionsAPI, collection string) *Index {
	return &Index{points: points, collections: collections, collection: collection}
}

// CollectionName returns the collection that holds one generation of base, so
// that each store build syncs into its own collection.
func CollectionName(base, generation string) string {
	if generation == "" {
		return base
	}
	return base + "_" + strings.ReplaceAll(generation, "-", "")
}

// Collection returns the name of the collection the index reads and writes.
func (x *Index) Collection() string {
	return x.collection
}

// Drop deletes the collection. A collection that was never created is not an error.
func (x *Index) Drop(ctx context.Context) error {
	list, err := x.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() != x.collection {
			continue
		}
		if _, err := x.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: x.collection}); err != nil {
			return fmt.Errorf("qdrant: delete collection %s: %w", x.collection, err)
		}
	}
	return nil
}

// Close closes the gRPC connection.
func (x *Index) Close() error {
	if x.conn == nil {
		return nil
	}
	return x.conn.Close()
}

// Sync replaces the collection's contents with entries.
func (x *Index) Sync(ctx context.Context, dimensions int, entries []models.Entry) error {
	if err := x.recreate(ctx, dimensions); err != nil {
		return err
	}
	wait := true
	for start := 0; start < len(entries); start += upsertBatch {
		end := start + upsertBatch
		if end > len(entries) {
			end = len(entries)
		}
		points := make([]*pb.PointStruct, 0, end-start)
		for _, e := range entries[start:end] {
			points = append(points, &pb.PointStruct{
				Id: &pb.PointId{
					PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(e.Chunk.ID)},
				},
				Vectors: &pb.Vectors{
					VectorsOptions: &pb.Vectors_Vector{
						Vector: &pb.Vector{Data: e.Vector},
					},
				},
				Payload: map[string]*pb.Value{
					payloadChunkID: {Kind: &pb.Value_StringValue{StringValue: e.Chunk.ID}},
				},
			})
		}
		if _, err := x.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: x.collection,
			Wait:           &wait,
			Points:         points,
		}); err != nil {
			return fmt.Errorf("qdrant: upsert %d points: %w", len(points), err)
		}
	}
	return nil
}

func (x *Index) recreate(ctx context.Context, dimensions int) error {
	list, err := x.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == x.collection {
			if _, err := x.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: x.collection}); err != nil {
				return fmt.Errorf("qdrant: delete collection %s: %w", x.collection, err)
			}
			break
		}
	}
	_, err = x.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dimensions),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", x.collection, err)
	}
	return nil
}

// Candidates returns up to n chunk IDs nearest to query.
func (x *Index) Candidates(ctx context.Context, query []float32, n int) ([]string, error) {
	resp, err := x.points.Search(ctx, &pb.SearchPoints{
		CollectionName: x.collection,
		Vector:         query,
		Limit:          uint64(n),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}
	ids := make([]string, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		if id := r.GetPayload()[payloadChunkID].GetStringValue(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// PointID maps a chunk ID to the UUID used as its Qdrant point ID.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}
