package googleEmbedding

import "errors"

var (
	errEmptyResponse   = errors.New("provider returned no embeddings")
	errPartialResponse = errors.New("provider returned a partial batch")
)
