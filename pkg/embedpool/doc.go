// Package embedpool pools embedding and reranking models so that model
// weights are loaded once per slot and reused across concurrent requests.
//
// A Config names the model to load (a ModelKind) and, optionally, the pool
// settings. CreatePool returns a ready pool:
//
//	pool, err := embedpool.FromModel(embedpool.Text(embeddings.BGESmallENV15)).
//		CreatePool(embedpool.StdRuntime{})
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	obj, err := pool.Get(ctx)
//	if err != nil {
//		return err
//	}
//	defer obj.Release()
//
//	text, _ := obj.Embedding().Text()
//	vecs, err := text.PassageEmbed(ctx, docs, 0)
//
// Acquisition, waiting and size limits are handled by puddle. This package
// supplies the Manager that builds one model instance per slot; its Recycle
// always reports the instance as reusable.
package embedpool
