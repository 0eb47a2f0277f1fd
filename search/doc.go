// Package search builds PostgreSQL full-text search predicates.
//
// A Query renders one of the server tsquery constructors. The Custom type
// accepts web-style search phrases and turns them into to_tsquery text
// with Parse:
//
//	Parse("(John | Mike | Dan) Doe", false) // ('John' | 'Mike' | 'Dan') & 'Doe'
//	Parse("HELL | fo", true)                // ('HELL':* | 'fo':*)
//
// Filter matches the query against a vector computed from columns and
// StoredFilter against a stored tsvector column. Both produce a Predicate
// to embed in a WHERE clause.
package search
