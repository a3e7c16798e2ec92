// Package querysql compiles link queries to parameterized SQLite statements.
//
// Every statement carries a total ORDER BY (timestamp, action_hash COLLATE
// BINARY) so identical link sets always come back in identical order, and no
// value is ever interpolated into SQL text.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/mementer/internal/ir"
)

// DefaultMaxParams keeps a statement well below SQLite's host parameter limit
// (999 on older builds).
const DefaultMaxParams = 500

// linkColumns is the projection every link statement returns, in scan order.
const linkColumns = "base, target, type, tag, action"

// LinkQuery selects links of one type from one or more bases.
type LinkQuery struct {
	Bases []ir.Hash
	Type  ir.LinkType
}

// Statement is one compiled SQL statement with its bound arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Compiler compiles LinkQuery values.
type Compiler struct {
	// MaxParams bounds the number of bases bound in a single statement.
	// Larger queries are split into several statements.
	MaxParams int
}

// NewCompiler returns a Compiler with DefaultMaxParams.
func NewCompiler() *Compiler {
	return &Compiler{MaxParams: DefaultMaxParams}
}

// Compile converts q to one or more statements. Callers concatenate the rows
// of all statements; each statement is ordered, and a base never spans two
// statements, so per-base order is preserved.
func (c *Compiler) Compile(q LinkQuery) ([]Statement, error) {
	if len(q.Bases) == 0 {
		return nil, fmt.Errorf("link query: no bases")
	}
	if !q.Type.Valid() {
		return nil, fmt.Errorf("link query: unknown link type %q", q.Type)
	}

	limit := c.MaxParams
	if limit <= 0 {
		limit = DefaultMaxParams
	}

	bases := dedupe(q.Bases)
	var stmts []Statement
	for start := 0; start < len(bases); start += limit {
		end := min(start+limit, len(bases))
		stmts = append(stmts, compileChunk(bases[start:end], q.Type))
	}
	return stmts, nil
}

func compileChunk(bases []ir.Hash, t ir.LinkType) Statement {
	args := make([]any, 0, len(bases)+1)
	var where string
	if len(bases) == 1 {
		where = "base = ?"
		args = append(args, string(bases[0]))
	} else {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(bases)), ", ")
		where = "base IN (" + placeholders + ")"
		for _, b := range bases {
			args = append(args, string(b))
		}
	}
	args = append(args, string(t))

	sql := fmt.Sprintf("SELECT %s FROM links WHERE %s AND type = ? ORDER BY %s",
		linkColumns, where, stableOrderKey())
	return Statement{SQL: sql, Args: args}
}

// stableOrderKey is the mandatory ORDER BY of every link statement.
// COLLATE BINARY keeps text ordering identical across SQLite builds.
func stableOrderKey() string {
	return "timestamp ASC, action_hash ASC COLLATE BINARY"
}

func dedupe(bases []ir.Hash) []ir.Hash {
	seen := make(map[ir.Hash]bool, len(bases))
	out := make([]ir.Hash, 0, len(bases))
	for _, b := range bases {
		if seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	return out
}
