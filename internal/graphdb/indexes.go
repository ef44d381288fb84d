package graphdb

// indexStatements is the idempotent startup DDL, including the
// template_name and choice_name indexes that speed up read-path queries
// beyond the write path's own lookups.
var indexStatements = []string{
	"CREATE INDEX created_contract_id IF NOT EXISTS FOR (c:Created) ON (c.contract_id)",
	"CREATE INDEX created_offset_node IF NOT EXISTS FOR (c:Created) ON (c.offset, c.node_id)",
	"CREATE INDEX created_template_name IF NOT EXISTS FOR (c:Created) ON (c.template_name)",
	"CREATE INDEX exercised_offset_node IF NOT EXISTS FOR (e:Exercised) ON (e.offset, e.node_id)",
	"CREATE INDEX exercised_choice_name IF NOT EXISTS FOR (e:Exercised) ON (e.choice_name)",
	"CREATE INDEX transaction_offset IF NOT EXISTS FOR (t:Transaction) ON (t.offset)",
	"CREATE INDEX party_id IF NOT EXISTS FOR (p:Party) ON (p.party_id)",
}
