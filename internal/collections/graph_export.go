package collections

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/pauubach/narrassist/internal/storage"
)

// GraphExporter publishes a collection's cross-book entity graph to an
// external graph database. It is an optional capability: when no
// backend is configured the no-op exporter stands in and export calls
// succeed without effect.
type GraphExporter interface {
	ExportCollection(ctx context.Context, collectionID int64) error
	Close(ctx context.Context) error
}

// NoopExporter is the in-memory stand-in used when Neo4j is not
// configured.
type NoopExporter struct{}

func (NoopExporter) ExportCollection(context.Context, int64) error { return nil }
func (NoopExporter) Close(context.Context) error                   { return nil }

// Neo4jExporter writes entities and SAME_AS links into Neo4j so a
// saga's character graph can be explored externally.
type Neo4jExporter struct {
	driver   neo4j.DriverWithContext
	database string
	store    storage.Storage
	logger   *zap.Logger
}

// NewNeo4jExporter connects to a Neo4j instance and verifies
// connectivity.
func NewNeo4jExporter(ctx context.Context, uri, username, password, database string, store storage.Storage, logger *zap.Logger) (*Neo4jExporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &Neo4jExporter{driver: driver, database: database, store: store, logger: logger}, nil
}

func (e *Neo4jExporter) Close(ctx context.Context) error {
	return e.driver.Close(ctx)
}

// ExportCollection merges the collection's projects, entities and
// entity links into the graph. Existing nodes are updated in place
// (MERGE semantics), so repeated exports are idempotent.
func (e *Neo4jExporter) ExportCollection(ctx context.Context, collectionID int64) error {
	links, err := e.store.ListEntityLinks(collectionID)
	if err != nil {
		return err
	}

	session := e.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: e.database})
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		exported := make(map[int64]bool)
		mergeEntity := func(entityID int64) error {
			if exported[entityID] {
				return nil
			}
			ent, err := e.store.GetEntity(entityID)
			if err != nil {
				return err
			}
			_, err = tx.Run(ctx, `
				MERGE (n:Entity {id: $id})
				SET n.name = $name,
				    n.type = $type,
				    n.project_id = $project_id,
				    n.importance = $importance,
				    n.mention_count = $mention_count
			`, map[string]any{
				"id":            ent.ID,
				"name":          ent.CanonicalName,
				"type":          string(ent.Type),
				"project_id":    ent.ProjectID,
				"importance":    string(ent.Importance),
				"mention_count": ent.MentionCount,
			})
			if err != nil {
				return err
			}
			exported[entityID] = true
			return nil
		}

		for _, l := range links {
			if err := mergeEntity(l.SourceEntityID); err != nil {
				return nil, err
			}
			if err := mergeEntity(l.TargetEntityID); err != nil {
				return nil, err
			}
			if _, err := tx.Run(ctx, `
				MATCH (a:Entity {id: $source}), (b:Entity {id: $target})
				MERGE (a)-[r:SAME_AS]->(b)
				SET r.similarity = $similarity,
				    r.match_type = $match_type,
				    r.collection_id = $collection_id
			`, map[string]any{
				"source":        l.SourceEntityID,
				"target":        l.TargetEntityID,
				"similarity":    l.Similarity,
				"match_type":    string(l.MatchType),
				"collection_id": collectionID,
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("export collection %d: %w", collectionID, err)
	}

	e.logger.Info("collection graph exported",
		zap.Int64("collection_id", collectionID),
		zap.Int("links", len(links)))
	return nil
}

var (
	_ GraphExporter = (*Neo4jExporter)(nil)
	_ GraphExporter = NoopExporter{}
)
