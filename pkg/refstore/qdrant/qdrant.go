// Package qdrant implements refstore.VectorIndex against a Qdrant server.
//
// The index is an optional accelerator: the SQLite exact scan remains the
// correctness oracle, and any deployment enabling this mirror should keep
// the store's equivalence test green against its collection settings.
package qdrant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/loomlabs/loom/pkg/refstore"
)

// Index mirrors embedded chunks into a Qdrant collection.
type Index struct {
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New connects to a Qdrant gRPC endpoint.
func New(addr, collection string) (*Index, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant dial: %w", err)
	}
	return &Index{
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// EnsureCollection creates the backing collection with cosine distance if it
// does not exist yet.
func (x *Index) EnsureCollection(ctx context.Context, vectorSize uint64) error {
	exists, err := x.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{
		CollectionName: x.collection,
	})
	if err == nil && exists.GetResult().GetExists() {
		return nil
	}
	_, err = x.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     vectorSize,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

// Upsert mirrors chunks into the collection. Point IDs are deterministic
// UUIDs derived from (skill, path, index) so re-upserts overwrite in place.
func (x *Index) Upsert(ctx context.Context, chunks []refstore.Chunk) error {
	points := make([]*pb.PointStruct, len(chunks))
	for i, chunk := range chunks {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(chunk)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: chunk.Embedding},
				},
			},
			Payload: map[string]*pb.Value{
				"skill_id":    {Kind: &pb.Value_StringValue{StringValue: chunk.SkillID}},
				"source_path": {Kind: &pb.Value_StringValue{StringValue: chunk.SourcePath}},
				"chunk_index": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(chunk.Index)}},
			},
		}
	}

	_, err := x.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: x.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

// Search returns the top-limit hits by cosine similarity, filtered by skill
// when skillID is non-empty.
func (x *Index) Search(ctx context.Context, vector []float32, skillID string, limit int) ([]refstore.IndexHit, error) {
	req := &pb.SearchPoints{
		CollectionName: x.collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	}
	if skillID != "" {
		req.Filter = skillFilter(skillID)
	}

	resp, err := x.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	hits := make([]refstore.IndexHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hit := refstore.IndexHit{Score: float64(r.Score)}
		if v, ok := r.Payload["skill_id"]; ok {
			hit.SkillID = v.GetStringValue()
		}
		if v, ok := r.Payload["source_path"]; ok {
			hit.SourcePath = v.GetStringValue()
		}
		if v, ok := r.Payload["chunk_index"]; ok {
			hit.Index = int(v.GetIntegerValue())
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// DeleteSkill removes every mirrored point owned by a skill.
func (x *Index) DeleteSkill(ctx context.Context, skillID string) error {
	_, err := x.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: x.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: skillFilter(skillID),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant delete: %w", err)
	}
	return nil
}

func skillFilter(skillID string) *pb.Filter {
	return &pb.Filter{
		Must: []*pb.Condition{
			{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key: "skill_id",
						Match: &pb.Match{
							MatchValue: &pb.Match_Keyword{Keyword: skillID},
						},
					},
				},
			},
		},
	}
}

func pointID(chunk refstore.Chunk) string {
	name := fmt.Sprintf("%s|%s|%d", chunk.SkillID, chunk.SourcePath, chunk.Index)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

var _ refstore.VectorIndex = (*Index)(nil)
