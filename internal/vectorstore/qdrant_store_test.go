package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, cosineSimilarity(v, v), 0.0001)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 0.0001)
}

func TestCosineSimilarityMismatchedLengths(t *testing.T) {
	assert.Equal(t, float32(0), cosineSimilarity([]float32{1, 2}, []float32{1}))
}

func TestClosestByVectorPicksHighestScore(t *testing.T) {
	query := []float32{1, 0}
	points := []Point{
		{ID: "a", Vector: []float32{0, 1}},
		{ID: "b", Vector: []float32{1, 0}},
		{ID: "c", Vector: []float32{0.7, 0.7}},
	}
	best := closestByVector(points, query)
	assert.Equal(t, "b", best.ID)
}

func TestNamespacedCollectionName(t *testing.T) {
	assert.Equal(t, "cv_repo1_code_chunks", namespaced("repo1", CollectionCodeChunks))
}
