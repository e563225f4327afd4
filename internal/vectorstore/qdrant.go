package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Collection holds the mirrored skill embeddings.
const Collection = "skills"

// Config holds connection settings for a Qdrant instance.
type Config struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Index mirrors persisted skill embeddings into Qdrant for accelerated
// nearest-neighbor search. The store remains the source of truth; the
// brute-force cosine path works without it.
type Index struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
}

// NewIndex dials the Qdrant gRPC endpoint and returns a ready Index.
func NewIndex(cfg Config) (*Index, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &Index{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
	}, nil
}

// EnsureCollection creates the skills collection (cosine distance) if it
// does not already exist.
func (x *Index) EnsureCollection(ctx context.Context, dimension uint64) error {
	_, err := x.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: Collection})
	if err == nil {
		return nil
	}
	_, err = x.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: Collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", Collection, err)
	}
	return nil
}

// UpsertSkill inserts or updates the point for a skill. Point ids are
// UUIDv5 digests of the skill slug, so re-upserting is idempotent.
func (x *Index) UpsertSkill(ctx context.Context, skillID string, vector []float32, payload map[string]string) error {
	payloadMap := map[string]*pb.Value{
		"skill_id": {Kind: &pb.Value_StringValue{StringValue: skillID}},
	}
	for k, v := range payload {
		payloadMap[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
	}
	_, err := x.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: Collection,
		Points: []*pb.PointStruct{
			{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(skillID)}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}}},
				Payload: payloadMap,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert %s: %w", skillID, err)
	}
	return nil
}

// DeleteSkill removes a skill's point from the index.
func (x *Index) DeleteSkill(ctx context.Context, skillID string) error {
	_, err := x.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: Collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(skillID)}}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", skillID, err)
	}
	return nil
}

// Hit is a single nearest-neighbor result.
type Hit struct {
	SkillID string
	Score   float32
}

// Search performs a nearest-neighbor search and returns the top-K hits.
func (x *Index) Search(ctx context.Context, vector []float32, topK uint64) ([]Hit, error) {
	resp, err := x.points.Search(ctx, &pb.SearchPoints{
		CollectionName: Collection,
		Vector:         vector,
		Limit:          topK,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", Collection, err)
	}
	hits := make([]Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		id := ""
		if v, ok := r.Payload["skill_id"]; ok {
			if sv, ok := v.Kind.(*pb.Value_StringValue); ok {
				id = sv.StringValue
			}
		}
		hits = append(hits, Hit{SkillID: id, Score: r.Score})
	}
	return hits, nil
}

func pointID(skillID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(skillID)).String()
}

// Close tears down the underlying gRPC connection.
func (x *Index) Close() error {
	return x.conn.Close()
}
