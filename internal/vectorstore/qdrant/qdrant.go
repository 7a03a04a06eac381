// Package qdrant implements adapter.VectorStore against a Qdrant
// instance over gRPC, selected when QDRANT_URL or QDRANT_HOST+
// QDRANT_PORT is set. Grounded on
// WessleyAI-wessley-mvp/engine/semantic/store.go's collection
// ensure/upsert/search/delete-by-filter shape over the raw qdrant
// protobuf client.
package qdrant

import (
	"context"
	"fmt"
	"strconv"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/docuforge/ragcore/internal/adapter"
	"github.com/docuforge/ragcore/internal/apierr"
	"github.com/docuforge/ragcore/internal/domain"
)

// Store is the sole owner of a collection's gRPC connection.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New dials addr (host:port) and binds to collection. Call
// EnsureCollection before the first Upsert/Search.
func New(addr, collection string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, apierr.Wrap(apierr.Permanent, "dial qdrant "+addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Close releases the gRPC connection.
func (s *Store) Close() error { return s.conn.Close() }

func distanceOf(name string) pb.Distance {
	switch name {
	case "dot":
		return pb.Distance_Dot
	case "euclid":
		return pb.Distance_Euclid
	default:
		return pb.Distance_Cosine
	}
}

// EnsureCollection creates the collection with the given vector
// dimension and distance metric if it doesn't already exist. A
// dimension mismatch against an existing collection is a
// startup-fatal error.
func (s *Store) EnsureCollection(ctx context.Context, dim int, distance string) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return apierr.Wrap(apierr.Transient, "list qdrant collections", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			info, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: s.collection})
			if err != nil {
				return apierr.Wrap(apierr.Transient, "get qdrant collection "+s.collection, err)
			}
			size := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
			if size != 0 && size != uint64(dim) {
				return apierr.Wrap(apierr.Permanent, fmt.Sprintf(
					"qdrant collection %s has vector size %d, embedder dimension is %d", s.collection, size, dim), nil)
			}
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dim),
					Distance: distanceOf(distance),
				},
			},
		},
	})
	if err != nil {
		return apierr.Wrap(apierr.Permanent, "create qdrant collection "+s.collection, err)
	}
	return nil
}

func payloadToStruct(p domain.VectorPayload) map[string]*pb.Value {
	return map[string]*pb.Value{
		"workspace_id":  {Kind: &pb.Value_StringValue{StringValue: p.WorkspaceID}},
		"document_id":   {Kind: &pb.Value_StringValue{StringValue: p.DocumentID}},
		"document_name": {Kind: &pb.Value_StringValue{StringValue: p.DocumentName}},
		"page_start":    {Kind: &pb.Value_IntegerValue{IntegerValue: int64(p.PageStart)}},
		"page_end":      {Kind: &pb.Value_IntegerValue{IntegerValue: int64(p.PageEnd)}},
		"snippet":       {Kind: &pb.Value_StringValue{StringValue: p.Snippet}},
	}
}

func structToPayload(m map[string]*pb.Value) domain.VectorPayload {
	return domain.VectorPayload{
		WorkspaceID:  m["workspace_id"].GetStringValue(),
		DocumentID:   m["document_id"].GetStringValue(),
		DocumentName: m["document_name"].GetStringValue(),
		PageStart:    int(m["page_start"].GetIntegerValue()),
		PageEnd:      int(m["page_end"].GetIntegerValue()),
		Snippet:      m["snippet"].GetStringValue(),
	}
}

// Upsert stores embedding points into Qdrant. Point IDs are passed
// through as Qdrant UUID point ids so repeated upserts with the same
// deterministic id converge.
func (s *Store) Upsert(ctx context.Context, points []adapter.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	pbPoints := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		pbPoints[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: p.Vector}}},
			Payload: payloadToStruct(p.Payload),
		}
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         pbPoints,
	})
	if err != nil {
		return apierr.Wrap(apierr.Transient, fmt.Sprintf("upsert %d points", len(points)), err)
	}
	return nil
}

func filterToConditions(filter adapter.SearchFilter) []*pb.Condition {
	conds := []*pb.Condition{fieldMatch("workspace_id", filter.WorkspaceID)}
	if filter.DocumentID != "" {
		conds = append(conds, fieldMatch("document_id", filter.DocumentID))
	}
	return conds
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}

// Search performs k-NN similarity search filtered to a workspace (and
// optionally a document).
func (s *Store) Search(ctx context.Context, vector []float32, topK int, filter adapter.SearchFilter) ([]adapter.ScoredPoint, error) {
	req := &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter:         &pb.Filter{Must: filterToConditions(filter)},
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "search qdrant", err)
	}

	out := make([]adapter.ScoredPoint, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		out[i] = adapter.ScoredPoint{
			Score:   r.GetScore(),
			Payload: structToPayload(r.GetPayload()),
		}
	}
	return out, nil
}

// DeleteByFilter removes every point matching filter, used by
// workspace cascade delete and document re-ingestion.
func (s *Store) DeleteByFilter(ctx context.Context, filter adapter.SearchFilter) error {
	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{Must: filterToConditions(filter)},
			},
		},
	})
	if err != nil {
		return apierr.Wrap(apierr.Transient, "delete by filter", err)
	}
	return nil
}

// VectorSizeFromEnv parses QDRANT_VECTOR_SIZE, returning 0 if unset or
// invalid so the caller can fall back to the embedder's own Dim().
func VectorSizeFromEnv(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
