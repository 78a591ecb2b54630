package store

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jRelatedGraph reads (:Ingredient)-[:RELATED_TO]-(:Ingredient) edges.
type Neo4jRelatedGraph struct {
	driver neo4j.DriverWithContext
}

func NewNeo4jRelatedGraph(driver neo4j.DriverWithContext) *Neo4jRelatedGraph {
	return &Neo4jRelatedGraph{driver: driver}
}

func (g *Neo4jRelatedGraph) RelatedIngredients(ctx context.Context, name string, limit int) ([]string, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (i:Ingredient {name: $name})-[:RELATED_TO]-(r:Ingredient)
		RETURN DISTINCT r.name AS name
		ORDER BY name
		LIMIT $limit`

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, query, map[string]interface{}{
			"name":  name,
			"limit": limit,
		})
		if err != nil {
			return nil, err
		}

		names := []string{}
		for result.Next(ctx) {
			if n, ok := result.Record().Get("name"); ok {
				if s, ok := n.(string); ok {
					names = append(names, s)
				}
			}
		}
		return names, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("related ingredient query failed: %w", err)
	}

	return result.([]string), nil
}
