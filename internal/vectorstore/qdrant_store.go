package vectorstore

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/contextvault/cv/internal/cverr"
	"github.com/contextvault/cv/internal/logging"
)

var allCollections = []Collection{
	CollectionCodeChunks, CollectionDocstrings, CollectionCommits,
	CollectionDocumentChunks, CollectionSummaries,
}

// QdrantStore implements Store over Qdrant's gRPC client. Grounded on
// the other_examples code-indexer's store.QdrantStore usage (Ensure-
// Collection before first write, one collection per concern), wired to
// the real github.com/qdrant/go-client package since this pack carries
// it (randalmurphal-code-indexer/go.mod) even though no repo's full
// client implementation was retrieved.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore parses a "http://host:port" style URL and dials Qdrant's
// gRPC port (Qdrant's gRPC port is conventionally REST port + 1, but cv
// expects the configured URL to already point at the gRPC port).
func NewQdrantStore(rawURL string) (*QdrantStore, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, cverr.Wrap(cverr.KindConfig, "NewQdrantStore", err)
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if p := u.Port(); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			port = parsed
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, cverr.Wrap(cverr.KindVector, "NewQdrantStore", err)
	}
	return &QdrantStore{client: client}, nil
}

func (s *QdrantStore) EnsureCollections(ctx context.Context, repoID string, dimensions int) error {
	for _, col := range allCollections {
		name := namespaced(repoID, col)
		exists, err := s.client.CollectionExists(ctx, name)
		if err != nil {
			return cverr.Wrap(cverr.KindVector, "EnsureCollections", err)
		}
		if exists {
			continue
		}
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return cverr.Wrap(cverr.KindVector, "EnsureCollections", fmt.Errorf("create %s: %w", name, err))
		}
		logging.Infof(logging.CategoryVector, "created collection %s (dim=%d)", name, dimensions)
	}
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, repoID string, collection Collection, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	pbPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		pbPoints[i] = &qdrant.PointStruct{
			Id:      pointID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(p.Payload),
		}
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: namespaced(repoID, collection),
		Points:         pbPoints,
	})
	if err != nil {
		return cverr.Wrap(cverr.KindVector, "Upsert", err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, repoID string, collection Collection, vector []float32, limit int, filter map[string]any) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	lim := uint64(limit)
	req := &qdrant.QueryPoints{
		CollectionName: namespaced(repoID, collection),
		Query:          qdrant.NewQuery(vector...),
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	}
	if len(filter) > 0 {
		req.Filter = buildFilter(filter)
	}
	resp, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, cverr.Wrap(cverr.KindVector, "Search", err)
	}
	return toSearchResults(resp), nil
}

func (s *QdrantStore) SearchByLevel(ctx context.Context, repoID string, level int, vector []float32, limit int) ([]SearchResult, error) {
	return s.Search(ctx, repoID, CollectionSummaries, vector, limit, map[string]any{"level": level})
}

// SearchHierarchical drills top-down from startLevel to endLevel
// (startLevel >= endLevel), running an independent SearchByLevel at each
// level and returning its top-k results keyed by level number — e.g.
// SearchHierarchical(q, 3, 1, k) returns a map with keys exactly
// {3, 2, 1}, letting a caller start broad ("where does X live?") and
// narrow down without committing to a single best child per hop.
func (s *QdrantStore) SearchHierarchical(ctx context.Context, repoID string, vector []float32, startLevel, endLevel, limit int) (map[int][]SearchResult, error) {
	if startLevel <= 0 {
		startLevel = 4
	}
	if endLevel <= 0 {
		endLevel = 1
	}
	if endLevel > startLevel {
		startLevel, endLevel = endLevel, startLevel
	}
	out := make(map[int][]SearchResult, startLevel-endLevel+1)
	for level := startLevel; level >= endLevel; level-- {
		results, err := s.SearchByLevel(ctx, repoID, level, vector, limit)
		if err != nil {
			return nil, err
		}
		out[level] = results
	}
	return out, nil
}

func (s *QdrantStore) GetSummary(ctx context.Context, repoID string, id string) (*Point, error) {
	resp, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: namespaced(repoID, CollectionSummaries),
		Ids:            []*qdrant.PointId{pointID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, cverr.Wrap(cverr.KindVector, "GetSummary", err)
	}
	if len(resp) == 0 {
		return nil, nil
	}
	pt := retrievedToPoint(resp[0])
	return &pt, nil
}

func (s *QdrantStore) GetSummaryChildren(ctx context.Context, repoID string, id string) ([]Point, error) {
	resp, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: namespaced(repoID, CollectionSummaries),
		Filter:         buildFilter(map[string]any{"parent": id}),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, cverr.Wrap(cverr.KindVector, "GetSummaryChildren", err)
	}
	results := toSearchResults(resp)
	points := make([]Point, len(results))
	for i, r := range results {
		points[i] = r.Point
	}
	return points, nil
}

func (s *QdrantStore) DeletePoints(ctx context.Context, repoID string, collection Collection, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pbIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pbIDs[i] = pointID(id)
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: namespaced(repoID, collection),
		Points:         qdrant.NewPointsSelector(pbIDs...),
	})
	if err != nil {
		return cverr.Wrap(cverr.KindVector, "DeletePoints", err)
	}
	return nil
}

func (s *QdrantStore) DeleteByPayloadMatch(ctx context.Context, repoID string, collection Collection, key, value string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: namespaced(repoID, collection),
		Points:         qdrant.NewPointsSelectorFilter(buildFilter(map[string]any{key: value})),
	})
	if err != nil {
		return cverr.Wrap(cverr.KindVector, "DeleteByPayloadMatch", err)
	}
	return nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func pointID(id string) *qdrant.PointId {
	return qdrant.NewID(id)
}

func buildFilter(match map[string]any) *qdrant.Filter {
	conds := make([]*qdrant.Condition, 0, len(match))
	for k, v := range match {
		switch val := v.(type) {
		case string:
			conds = append(conds, qdrant.NewMatch(k, val))
		case int:
			conds = append(conds, qdrant.NewMatchInt(k, int64(val)))
		default:
			conds = append(conds, qdrant.NewMatch(k, fmt.Sprintf("%v", val)))
		}
	}
	return &qdrant.Filter{Must: conds}
}

func toSearchResults(points []*qdrant.ScoredPoint) []SearchResult {
	out := make([]SearchResult, 0, len(points))
	for _, p := range points {
		out = append(out, SearchResult{
			Point: Point{
				ID:      idToString(p.Id),
				Vector:  vectorOf(p.Vectors),
				Payload: payloadToMap(p.Payload),
			},
			Score: p.Score,
		})
	}
	return out
}

func retrievedToPoint(p *qdrant.RetrievedPoint) Point {
	return Point{
		ID:      idToString(p.Id),
		Vector:  vectorOf(p.Vectors),
		Payload: payloadToMap(p.Payload),
	}
}

func idToString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

func vectorOf(v *qdrant.VectorsOutput) []float32 {
	if v == nil {
		return nil
	}
	if dense := v.GetVector(); dense != nil {
		return dense.GetData()
	}
	return nil
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = valueToAny(v)
	}
	return out
}

func valueToAny(v *qdrant.Value) any {
	switch kind := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return nil
	}
}

func closestByVector(points []Point, query []float32) Point {
	if len(points) == 0 {
		return Point{}
	}
	best := points[0]
	bestScore := cosineSimilarity(query, best.Vector)
	for _, p := range points[1:] {
		if score := cosineSimilarity(query, p.Vector); score > bestScore {
			bestScore = score
			best = p
		}
	}
	return best
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(magA) * math.Sqrt(magB)))
}

var _ Store = (*QdrantStore)(nil)
