// Package graph mirrors a field's attractor and pathway topology into
// Neo4j. The mirror is write-only from the engine's point of view: the
// in-memory field stays authoritative, the graph exists for exploration
// and cross-field queries.
package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/nidhogg/semfield/internal/field"
)

// Mirror writes field topology to Neo4j.
type Mirror struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewMirror creates a Neo4j-backed topology mirror.
func NewMirror(uri, user, password string, logger *zap.Logger) (*Mirror, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Mirror{driver: driver, logger: logger}, nil
}

// Close shuts down the Neo4j driver.
func (m *Mirror) Close(ctx context.Context) error {
	return m.driver.Close(ctx)
}

// Ping verifies the Neo4j connection.
func (m *Mirror) Ping(ctx context.Context) error {
	return m.driver.VerifyConnectivity(ctx)
}

// SyncField replaces the mirrored subgraph for one field with the
// field's current attractors and pathways. Replacement is wholesale:
// stale nodes from earlier syncs never linger.
func (m *Mirror) SyncField(ctx context.Context, f *field.Field) error {
	snap := f.Snapshot()

	session := m.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		_, err := tx.Run(ctx,
			`MATCH (n {field_id: $fieldId}) DETACH DELETE n`,
			map[string]interface{}{"fieldId": snap.FieldID})
		if err != nil {
			return nil, err
		}

		_, err = tx.Run(ctx,
			`MERGE (f:Field {id: $fieldId})
			SET f.coherence = $coherence,
			    f.overall_health = $health,
			    f.repair_state = $state`,
			map[string]interface{}{
				"fieldId":   snap.FieldID,
				"coherence": snap.Metrics.Coherence,
				"health":    snap.Metrics.OverallHealth,
				"state":     string(snap.RepairState),
			})
		if err != nil {
			return nil, err
		}

		for _, a := range snap.Attractors {
			_, err = tx.Run(ctx,
				`MATCH (f:Field {id: $fieldId})
				CREATE (a:Attractor {
					id: $id, field_id: $fieldId, pattern: $pattern,
					strength: $strength, basin_width: $basin
				})
				CREATE (f)-[:HOLDS]->(a)`,
				map[string]interface{}{
					"fieldId":  snap.FieldID,
					"id":       a.ID,
					"pattern":  a.Pattern,
					"strength": a.Strength,
					"basin":    a.BasinWidth,
				})
			if err != nil {
				return nil, err
			}
		}

		for _, p := range snap.Patterns {
			_, err = tx.Run(ctx,
				`MATCH (f:Field {id: $fieldId})
				CREATE (p:Pattern {
					id: $id, field_id: $fieldId, content: $content,
					strength: $strength
				})
				CREATE (f)-[:HOLDS]->(p)`,
				map[string]interface{}{
					"fieldId":  snap.FieldID,
					"id":       p.ID,
					"content":  p.Content,
					"strength": p.Strength,
				})
			if err != nil {
				return nil, err
			}
		}

		for _, pw := range snap.Pathways {
			_, err = tx.Run(ctx,
				`MATCH (a {id: $from, field_id: $fieldId})
				MATCH (b {id: $to, field_id: $fieldId})
				CREATE (a)-[:PATHWAY {strength: $strength}]->(b)`,
				map[string]interface{}{
					"fieldId":  snap.FieldID,
					"from":     pw.From,
					"to":       pw.To,
					"strength": pw.Strength,
				})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("sync field %s: %w", snap.FieldID, err)
	}

	m.logger.Debug("field mirrored",
		zap.String("field", snap.FieldID),
		zap.Int("attractors", len(snap.Attractors)),
		zap.Int("pathways", len(snap.Pathways)))
	return nil
}

// RemoveField deletes the mirrored subgraph for a field.
func (m *Mirror) RemoveField(ctx context.Context, fieldID string) error {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		if _, err := tx.Run(ctx,
			`MATCH (n {field_id: $fieldId}) DETACH DELETE n`,
			map[string]interface{}{"fieldId": fieldID}); err != nil {
			return nil, err
		}
		_, err := tx.Run(ctx,
			`MATCH (f:Field {id: $fieldId}) DETACH DELETE f`,
			map[string]interface{}{"fieldId": fieldID})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("remove field %s: %w", fieldID, err)
	}
	return nil
}
