package driver

var IndexQueries = []string{
	"CREATE INDEX ON :Entity(id);",
	"CREATE INDEX ON :Evidence(id);",
	"CREATE INDEX ON :Entity(type);",
}

const (
	LoadEvidenceQuery = `
		MATCH (v:Evidence)
		RETURN v.id AS id,
			v.document_id AS document_id,
			v.span_start AS span_start,
			v.span_end AS span_end,
			v.page AS page,
			v.excerpt AS excerpt,
			v.embedding AS embedding,
			v.embedding_version AS embedding_version
		ORDER BY id
	`

	LoadEntitiesQuery = `
		MATCH (n:Entity)
		RETURN n.id AS id,
			n.type AS type,
			n.name AS name,
			n.aliases AS aliases,
			n.attributes AS attributes,
			n.source_reliability AS source_reliability,
			n.evidence_ids AS evidence_ids,
			n.created_at AS created_at,
			n.embedding AS embedding,
			n.embedding_version AS embedding_version
		ORDER BY id
	`

	LoadRelationshipsQuery = `
		MATCH (s:Entity)-[r:RELATES_TO]->(t:Entity)
		RETURN r.id AS id,
			s.id AS source_id,
			t.id AS target_id,
			r.type AS type,
			r.directed AS directed,
			r.confidence AS confidence,
			r.extraction_confidence AS extraction_confidence,
			r.source_reliability AS source_reliability,
			r.evidence_ids AS evidence_ids,
			r.created_at AS created_at
		ORDER BY id
	`
)
