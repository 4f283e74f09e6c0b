package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/marketmind/marketmind/pkg/model"
	"github.com/qdrant/go-client/qdrant"
)

// Embedder converts text into a vector. Satisfied by adapter.Gemini.
type Embedder interface {
	Embedding(ctx context.Context, text string) ([]float32, error)
}

// QdrantMemory implements MemoryStore on a Qdrant collection. All chats
// share one collection; retrieval is scoped by similarity only.
type QdrantMemory struct {
	client     *qdrant.Client
	embedder   Embedder
	collection string
}

type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	VectorSize uint64
}

// NewQdrantMemory connects to Qdrant and ensures the collection exists.
func NewQdrantMemory(ctx context.Context, cfg QdrantConfig, embedder Embedder) (*QdrantMemory, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect to qdrant", goerr.V("host", cfg.Host))
	}

	existing, err := client.ListCollections(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list qdrant collections")
	}

	found := false
	for _, name := range existing {
		if name == cfg.Collection {
			found = true
			break
		}
	}
	if !found {
		err := client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: cfg.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     cfg.VectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create qdrant collection", goerr.V("collection", cfg.Collection))
		}
	}

	return &QdrantMemory{
		client:     client,
		embedder:   embedder,
		collection: cfg.Collection,
	}, nil
}

func (q *QdrantMemory) Upsert(ctx context.Context, rec model.MemoryRecord) error {
	vector, err := q.embedder.Embedding(ctx, rec.Text)
	if err != nil {
		return goerr.Wrap(model.ErrStoreUnavailable, "failed to embed memory text", goerr.V("cause", err.Error()))
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(uuid.New().String()),
		Vectors: qdrant.NewVectors(vector...),
		Payload: qdrant.NewValueMap(map[string]any{
			"text":    rec.Text,
			"chat_id": string(rec.ChatID),
			"role":    rec.Role,
		}),
	}

	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return goerr.Wrap(model.ErrStoreUnavailable, "failed to upsert memory", goerr.V("cause", err.Error()))
	}
	return nil
}

func (q *QdrantMemory) Query(ctx context.Context, text string, k int) ([]string, error) {
	vector, err := q.embedder.Embedding(ctx, text)
	if err != nil {
		return nil, goerr.Wrap(model.ErrStoreUnavailable, "failed to embed query text", goerr.V("cause", err.Error()))
	}

	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, goerr.Wrap(model.ErrStoreUnavailable, "failed to query memories", goerr.V("cause", err.Error()))
	}

	texts := make([]string, 0, len(hits))
	for _, hit := range hits {
		payload := hit.GetPayload()
		if payload == nil {
			continue
		}
		if text := payload["text"].GetStringValue(); text != "" {
			texts = append(texts, text)
		}
	}
	return texts, nil
}
