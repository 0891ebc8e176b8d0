package driver

const (
	GetEntityByIDQuery = `
		MATCH (n:Entity {id: $id})
		RETURN n.id AS id, n.canonical_name AS canonical_name, n.type AS type,
			n.layer AS layer, n.confidence AS confidence, n.evidence AS evidence,
			n.aliases AS aliases, n.source_refs AS source_refs,
			n.validation_count AS validation_count, n.ontology_match AS ontology_match,
			n.created_at AS created_at, n.updated_at AS updated_at, n.version AS version
	`

	// Cheap scanner pre-filter: entities at one layer whose confidence is
	// already near the next layer's threshold. Exact guard evaluation happens
	// in the state machine, not here.
	GetPromotionCandidatesQuery = `
		MATCH (n:Entity {layer: $layer})
		WHERE n.confidence >= $min_confidence
		RETURN n.id AS id, n.canonical_name AS canonical_name, n.type AS type,
			n.layer AS layer, n.confidence AS confidence, n.evidence AS evidence,
			n.aliases AS aliases, n.source_refs AS source_refs,
			n.validation_count AS validation_count, n.ontology_match AS ontology_match,
			n.created_at AS created_at, n.updated_at AS updated_at, n.version AS version
		ORDER BY n.confidence DESC
		LIMIT $limit
	`

	GetRelationshipByIDQuery = `
		MATCH (source:Entity)-[e:RELATES_TO {id: $id}]->(target:Entity)
		RETURN e.id AS id, source.id AS source_id, target.id AS target_id,
			e.type AS type, e.layer AS layer, e.confidence AS confidence,
			e.provenance AS provenance, e.created_at AS created_at, e.version AS version,
			source.layer AS source_layer, target.layer AS target_layer
	`

	GetRelationshipCandidatesQuery = `
		MATCH (source:Entity)-[e:RELATES_TO {layer: $layer}]->(target:Entity)
		WHERE e.confidence >= $min_confidence
		RETURN e.id AS id, source.id AS source_id, target.id AS target_id,
			e.type AS type, e.layer AS layer, e.confidence AS confidence,
			e.provenance AS provenance, e.created_at AS created_at, e.version AS version,
			source.layer AS source_layer, target.layer AS target_layer
		ORDER BY e.confidence DESC
		LIMIT $limit
	`

	// Used by the canonical registry when two concepts merge: every edge
	// touching the absorbed node is repointed at the survivor in one query.
	RewriteEdgeEndpointsQuery = `
		MATCH (absorbed:Entity {id: $absorbed_id})
		MATCH (survivor:Entity {id: $survivor_id})
		OPTIONAL MATCH (absorbed)-[out:RELATES_TO]->(t:Entity)
		FOREACH (_ IN CASE WHEN out IS NULL THEN [] ELSE [1] END |
			MERGE (survivor)-[e:RELATES_TO {id: out.id}]->(t)
			SET e = properties(out)
			DELETE out)
		WITH absorbed, survivor
		OPTIONAL MATCH (s:Entity)-[in:RELATES_TO]->(absorbed)
		FOREACH (_ IN CASE WHEN in IS NULL THEN [] ELSE [1] END |
			MERGE (s)-[e:RELATES_TO {id: in.id}]->(survivor)
			SET e = properties(in)
			DELETE in)
		RETURN survivor.id AS id
	`

	// Resolved neighbor ids for the graph-neighborhood strategy.
	GetNeighborIDsQuery = `
		MATCH (n:Entity {id: $id})-[:RELATES_TO]-(m:Entity)
		RETURN DISTINCT m.id AS id
	`

	// Resolution candidate pool: entities of the draft's type, projected to
	// what the matching strategies need. Neighbor ids ride along so the
	// graph-neighborhood strategy does not need a second round trip.
	GetCandidatesByTypeQuery = `
		MATCH (n:Entity {type: $type})
		OPTIONAL MATCH (n)-[:RELATES_TO]-(m:Entity)
		RETURN n.id AS id, n.canonical_name AS canonical_name, n.aliases AS aliases,
			n.name_embedding AS name_embedding, collect(DISTINCT m.id) AS neighbor_ids
		LIMIT $limit
	`

	GetEntitiesByNameKeyQuery = `
		MATCH (n:Entity {name_key: $name_key})
		RETURN n.id AS id
	`

	// Registry warm-up on startup: just enough of each entity to rebuild the
	// alias index.
	GetEntitySummariesQuery = `
		MATCH (n:Entity)
		RETURN n.id AS id, n.canonical_name AS canonical_name,
			n.aliases AS aliases, n.created_at AS created_at
	`

	CountEntitiesByLayerQuery = `
		MATCH (n:Entity {layer: $layer})
		RETURN count(n) AS count
	`
)
