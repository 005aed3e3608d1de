// Package mock provides test doubles for the ai package interfaces.
//
// # Usage
//
//	mockEmbedder := mock.NewMockEmbedder()
//	mockEmbedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    return []float32{0.1, 0.2, 0.3}, nil
//	}
//
//	gen := mock.NewMockGenerator("I have", " something")
//	gen.Hold = true // keep the call open until the consumer goes away
//	<-gen.Canceled()
//
// # Default Behavior
//
//   - MockEmbedder: Returns deterministic unit vectors based on text hash
//   - MockGenerator: Replays its fragments in order, optionally failing
//   - MockProvider: Aggregates mock embedder and generator
package mock
