// Package embed defines the embedding-model interface consumed by the
// retriever. The embedding model itself is an external collaborator,
// treated as a pure function: text -> vector.
package embed

import "context"

// Encoder turns text into dense vectors. Implementations must be
// deterministic. Query and article text may use different encoders, so the
// interface is parameterized by role rather than assuming a single model.
type Encoder interface {
	// EncodeQuery embeds a single query string.
	EncodeQuery(ctx context.Context, text string) ([]float64, error)
	// EncodeArticles embeds a batch of article/chunk texts.
	EncodeArticles(ctx context.Context, texts []string) ([][]float64, error)
}
