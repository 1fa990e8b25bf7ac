// Package loader turns source specifiers (filesystem globs or registered
// code-script sources) into the graph.Migration slice that internal/graph
// and internal/planner operate on. See sqlparse.go for the SQL statement
// tokenizer and directives.go for the depends/transactional comment
// grammar.
package loader
