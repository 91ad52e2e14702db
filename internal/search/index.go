package search

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/filament/gateway/internal/gatewayerr"
)

// rebuildScanLimit bounds how many existing documents Rebuild will collect
// and delete in one pass; it mirrors search_reconcile_max_docs in spirit but
// is a fixed internal cap since Rebuild has no caller-supplied bound.
const rebuildScanLimit = 100000

// Document is one indexed message, per spec.md §4.9's schema.
type Document struct {
	MessageID     string
	GuildID       string
	ChannelID     string
	Content       string
	SchemaVersion int
}

type indexDoc struct {
	GuildID       string `json:"guild_id"`
	ChannelID     string `json:"channel_id"`
	Content       string `json:"content"`
	SchemaVersion int    `json:"schema_version"`
}

func toIndexDoc(d Document) indexDoc {
	return indexDoc{GuildID: d.GuildID, ChannelID: d.ChannelID, Content: d.Content, SchemaVersion: d.SchemaVersion}
}

// buildMapping defines the message document mapping: guild_id and
// channel_id as unanalyzed keyword fields (for equality clauses), content
// under the default tokenizer.
func buildMapping() mapping.IndexMapping {
	keyword := bleve.NewTextFieldMapping()
	keyword.Analyzer = "keyword"

	content := bleve.NewTextFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("guild_id", keyword)
	doc.AddFieldMappingsAt("channel_id", keyword)
	doc.AddFieldMappingsAt("content", content)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Index wraps a bleve index as the embedded writer/reader-snapshot engine
// of spec.md §4.9/§5. Every mutation flows through the single writer task
// in queue.go; readers call Search directly, which bleve serves from a
// lock-free snapshot relative to writers.
type Index struct {
	idx bleve.Index
}

// Open opens an existing index at path, or creates one with the fixed
// message mapping if none exists yet.
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if err == nil {
		return &Index{idx: idx}, nil
	}
	if !os.IsNotExist(err) && err != bleve.ErrorIndexPathDoesNotExist {
		return nil, fmt.Errorf("search: open index at %q: %w", path, err)
	}
	idx, err = bleve.New(path, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("search: create index at %q: %w", path, err)
	}
	return &Index{idx: idx}, nil
}

// OpenMem builds an in-memory index with the fixed message mapping,
// bypassing the filesystem entirely. Used by tests and by any deployment
// that treats the search index as a rebuildable cache rather than durable
// storage.
func OpenMem() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("search: open in-memory index: %w", err)
	}
	return &Index{idx: idx}, nil
}

// Close releases the underlying bleve index.
func (ix *Index) Close() error {
	return ix.idx.Close()
}

// applyBatch runs one drained batch of commands through a single bleve
// batch, committing atomically per spec.md §4.9's writer algorithm.
func (ix *Index) applyBatch(cmds []*Command) error {
	batch := ix.idx.NewBatch()

	for _, c := range cmds {
		switch c.Kind {
		case CommandUpsert:
			batch.Delete(c.Upsert.MessageID)
			if err := batch.Index(c.Upsert.MessageID, toIndexDoc(*c.Upsert)); err != nil {
				return fmt.Errorf("search: index upsert %q: %w", c.Upsert.MessageID, err)
			}
		case CommandDelete:
			batch.Delete(c.DeleteID)
		case CommandRebuild:
			ids, err := ix.allDocumentIDs()
			if err != nil {
				return err
			}
			for _, id := range ids {
				batch.Delete(id)
			}
			for _, d := range c.RebuildDocs {
				if err := batch.Index(d.MessageID, toIndexDoc(d)); err != nil {
					return fmt.Errorf("search: index rebuild doc %q: %w", d.MessageID, err)
				}
			}
		case CommandReconcile:
			for _, id := range c.ReconcileDeleteIDs {
				batch.Delete(id)
			}
			for _, d := range c.ReconcileUpserts {
				batch.Delete(d.MessageID)
				if err := batch.Index(d.MessageID, toIndexDoc(d)); err != nil {
					return fmt.Errorf("search: index reconcile doc %q: %w", d.MessageID, err)
				}
			}
		}
	}

	if err := ix.idx.Batch(batch); err != nil {
		return fmt.Errorf("search: commit batch: %w", err)
	}
	return nil
}

// allDocumentIDs collects up to rebuildScanLimit document IDs currently in
// the index, for Rebuild's delete-all step.
func (ix *Index) allDocumentIDs() ([]string, error) {
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), rebuildScanLimit, 0, false)
	req.Fields = nil
	res, err := ix.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: scan existing documents: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// GuildDocumentIDs returns up to maxDocs message IDs currently indexed for
// guildID, sorted ascending, for reconciliation's "index set" side.
func (ix *Index) GuildDocumentIDs(guildID string, maxDocs int) ([]string, error) {
	q := bleve.NewTermQuery(guildID)
	q.SetField("guild_id")
	req := bleve.NewSearchRequestOptions(q, maxDocs, 0, false)
	res, err := ix.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: scan guild documents: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// Query executes spec.md §4.9's query shape: guild_id equality MUST clause
// AND parsed user query (default-tokenizer content field) AND optional
// channel_id equality, ranked by the default scorer, returning up to limit
// message IDs. The parser's grammar errors are reported as InvalidRequest,
// matching the propagation policy of §7.
func (ix *Index) Query(ctx context.Context, guildID string, channelID string, rawQuery string, limit int) ([]string, error) {
	userQuery := bleve.NewQueryStringQuery(rawQuery)
	if _, err := userQuery.Parse(); err != nil {
		return nil, gatewayerr.New(gatewayerr.InvalidRequest).WithReason("search_query_grammar")
	}

	guildClause := bleve.NewTermQuery(guildID)
	guildClause.SetField("guild_id")

	clauses := []bleve.Query{guildClause, userQuery}
	if channelID != "" {
		channelClause := bleve.NewTermQuery(channelID)
		channelClause.SetField("channel_id")
		clauses = append(clauses, channelClause)
	}

	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(clauses...), limit, 0, false)
	res, err := ix.idx.SearchInContext(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, gatewayerr.New(gatewayerr.InvalidRequest).WithReason("search_query_timeout")
		}
		return nil, gatewayerr.Wrap(err)
	}

	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}
