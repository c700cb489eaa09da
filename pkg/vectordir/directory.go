// Package vectordir is the capability-indexed agent catalogue: a
// chromem-go collection auto-embedding each AgentInfo's description, used
// both as the router's global agent_registry and as each client's private
// contact book.
package vectordir

import (
	"context"
	"encoding/json"
	"fmt"

	chromem "github.com/philippgille/chromem-go"

	"github.com/agentmesh/mesh/pkg/meshtypes"
)

// Directory wraps one chromem-go collection of AgentInfo records, embedding
// on Desc via the configured Embedder.
type Directory struct {
	db         *chromem.DB
	collection *chromem.Collection
}

func chromemEmbedFunc(embedder Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vecs, err := embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vecs) == 0 {
			return nil, fmt.Errorf("embedder returned no vector")
		}
		return vecs[0], nil
	}
}

// Open opens (creating if absent) a persistent collection named
// meshtypes.SanitizeName(name) under persistDir.
func Open(persistDir, name string, embedder Embedder) (*Directory, error) {
	db, err := chromem.NewPersistentDB(persistDir, false)
	if err != nil {
		return nil, fmt.Errorf("opening vector directory at %s: %w", persistDir, err)
	}
	coll, err := db.GetOrCreateCollection(meshtypes.SanitizeName(name), nil, chromemEmbedFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", name, err)
	}
	return &Directory{db: db, collection: coll}, nil
}

// Upsert adds or replaces the record for info.Name, embedding info.Desc.
func (d *Directory) Upsert(ctx context.Context, info meshtypes.AgentInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encoding agent info for %s: %w", info.Name, err)
	}
	doc := chromem.Document{
		ID:       info.Name,
		Content:  info.Desc,
		Metadata: map[string]string{"record": string(raw)},
	}
	if err := d.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("upserting %s: %w", info.Name, err)
	}
	return nil
}

// Get returns the record stored under key, or ok=false if absent.
func (d *Directory) Get(ctx context.Context, key string) (meshtypes.AgentInfo, bool, error) {
	doc, err := d.collection.GetByID(ctx, key)
	if err != nil {
		return meshtypes.AgentInfo{}, false, nil
	}
	info, decodeErr := decodeRecord(doc.Metadata)
	if decodeErr != nil {
		return meshtypes.AgentInfo{}, false, decodeErr
	}
	return info, true, nil
}

// Contains reports whether key exists in the directory.
func (d *Directory) Contains(ctx context.Context, key string) bool {
	_, ok, _ := d.Get(ctx, key)
	return ok
}

// Delete removes key, a silent no-op if absent.
func (d *Directory) Delete(ctx context.Context, key string) error {
	if err := d.collection.Delete(ctx, nil, nil, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Len returns the number of records in the directory.
func (d *Directory) Len() int {
	return d.collection.Count()
}

// Search runs one query per entry of queryTexts and returns up to topK hits
// each, deduplicated by AgentInfo.Name across all queries with stable
// first-seen ordering (the first query's ranking wins ties).
func (d *Directory) Search(ctx context.Context, queryTexts []string, topK int) ([]meshtypes.AgentInfo, error) {
	if topK <= 0 {
		topK = 5
	}
	count := d.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	seen := make(map[string]bool)
	var out []meshtypes.AgentInfo
	for _, q := range queryTexts {
		results, err := d.collection.Query(ctx, q, topK, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("querying %q: %w", q, err)
		}
		for _, r := range results {
			if seen[r.ID] {
				continue
			}
			info, err := decodeRecord(r.Metadata)
			if err != nil {
				return nil, err
			}
			seen[r.ID] = true
			out = append(out, info)
		}
	}
	return out, nil
}

func decodeRecord(metadata map[string]string) (meshtypes.AgentInfo, error) {
	raw, ok := metadata["record"]
	if !ok {
		return meshtypes.AgentInfo{}, fmt.Errorf("record missing metadata")
	}
	var info meshtypes.AgentInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return meshtypes.AgentInfo{}, fmt.Errorf("decoding agent record: %w", err)
	}
	return info, nil
}
