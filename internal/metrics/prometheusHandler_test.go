package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSearchCounterIncrements(t *testing.T) {
	before := testutil.ToFloat64(searchesTotal)
	IncrementSearches()
	IncrementSearches()
	assert.Equal(t, before+2, testutil.ToFloat64(searchesTotal))
}

func TestAccessDeniedCounterIncrements(t *testing.T) {
	before := testutil.ToFloat64(accessDenied)
	IncrementAccessDenied()
	assert.Equal(t, before+1, testutil.ToFloat64(accessDenied))
}

func TestStatusRecorderCapturesCode(t *testing.T) {
	rec := &HttpStatusRecorder{ResponseWriter: httptest.NewRecorder()}
	rec.WriteHeader(418)
	assert.Equal(t, 418, rec.Status)
}
