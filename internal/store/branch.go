package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/antigravity-dev/branchmind/internal/ids"
)

const maxBranchDepth = 32

// Branch is a named copy-on-write view over a workspace's documents and
// graphs, inheriting entries from its base up to a fixed cutoff.
type Branch struct {
	Name        string
	BaseBranch  string
	BaseSeq     int64
	CreatedAtMs int64
}

// BranchSource is one hop in a branch's inheritance chain: its own
// branch name, and (for every hop past the first) the cutoff sequence
// at which its base's entries stop being visible.
type BranchSource struct {
	Branch string
	Cutoff *int64 // nil for the branch itself (no cutoff on its own entries)
}

// BranchSources walks base_branch pointers from branch, taking the
// minimum cutoff at each hop, bounded by maxBranchDepth. It is the
// single source of truth every doc/graph query's WHERE clause is built
// from (spec.md §4.1.1).
func (s *Store) BranchSources(ctx context.Context, ws ids.WorkspaceID, branch string) ([]BranchSource, error) {
	var out []BranchSource
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		chain, err := branchSources(tx, ws, branch)
		if err != nil {
			return err
		}
		out = chain
		return nil
	})
	return out, err
}

func branchSources(tx *sql.Tx, ws ids.WorkspaceID, branch string) ([]BranchSource, error) {
	visited := map[string]bool{}
	var chain []BranchSource
	cur := branch
	var cutoff *int64
	for depth := 0; ; depth++ {
		if depth > maxBranchDepth {
			return nil, &BranchDepthExceededError{Branch: branch, Depth: depth}
		}
		if visited[cur] {
			return nil, &BranchCycleError{Branch: branch}
		}
		visited[cur] = true

		var b Branch
		err := tx.QueryRow(`SELECT name, base_branch, base_seq, created_at_ms FROM branches WHERE workspace = ? AND name = ?`,
			ws.String(), cur).Scan(&b.Name, &b.BaseBranch, &b.BaseSeq, &b.CreatedAtMs)
		if err == sql.ErrNoRows {
			return nil, &UnknownBranchError{Branch: cur}
		}
		if err != nil {
			return nil, fmt.Errorf("store: branch sources: %w", err)
		}

		hopCutoff := cutoff
		chain = append(chain, BranchSource{Branch: cur, Cutoff: hopCutoff})

		if b.BaseBranch == "" {
			break
		}
		next := b.BaseSeq
		if cutoff != nil && *cutoff < next {
			next = *cutoff
		}
		cutoff = &next
		cur = b.BaseBranch
	}
	return chain, nil
}

// docEntriesHeadSeqTx returns the workspace-wide doc_entries head
// sequence — the highest seq written so far across every branch, not
// just one. A new branch's base_seq must be this workspace-wide head:
// branchSources (below) takes the minimum cutoff across hops, so a
// branch-scoped head that happens to be 0 for an intermediate branch
// (any branch created before it ever got its own doc_entries rows)
// would zero the cutoff for every deeper ancestor too.
func docEntriesHeadSeqTx(tx *sql.Tx, ws ids.WorkspaceID) (int64, error) {
	var seq int64
	err := tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM doc_entries WHERE workspace = ?`, ws.String()).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("store: doc entries head seq: %w", err)
	}
	return seq, nil
}

// CreateBranch creates a new named branch on top of baseBranch (the
// default branch when empty). Its base_seq is the workspace-wide
// doc_entries head at creation time; there is no parameter for choosing
// a different base sequence.
func (s *Store) CreateBranch(ctx context.Context, ws ids.WorkspaceID, name, baseBranch string) (Branch, error) {
	var out Branch
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := nowMs()
		if err := ensureWorkspace(tx, ws, now); err != nil {
			return err
		}
		if err := ensureDefaultBranch(tx, ws, now); err != nil {
			return err
		}
		if baseBranch == "" {
			baseBranch = defaultBranch
		}

		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM branches WHERE workspace = ? AND name = ?`, ws.String(), name).Scan(&exists); err != nil {
			return fmt.Errorf("store: check branch exists: %w", err)
		}
		if exists > 0 {
			return &BranchAlreadyExistsError{Branch: name}
		}

		if _, err := branchSources(tx, ws, baseBranch); err != nil {
			return err
		}

		// base_seq is the workspace-wide doc_entries head, not a
		// branch-scoped one: branchSources propagates cutoffs as a
		// running minimum across hops, so a branch-scoped head that is
		// wrongly 0 for an intermediate branch would zero the cutoff
		// for every deeper ancestor too.
		baseSeq, err := docEntriesHeadSeqTx(tx, ws)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(`INSERT INTO branches(workspace, name, base_branch, base_seq, created_at_ms) VALUES (?, ?, ?, ?, ?)`,
			ws.String(), name, baseBranch, baseSeq, now); err != nil {
			return fmt.Errorf("store: insert branch: %w", err)
		}

		// A derived branch must not exceed the depth guard either.
		if _, err := branchSources(tx, ws, name); err != nil {
			return err
		}

		out = Branch{Name: name, BaseBranch: baseBranch, BaseSeq: baseSeq, CreatedAtMs: now}
		return nil
	})
	return out, err
}

// DeleteBranch removes a branch. It refuses to delete the currently
// checked-out branch, and refuses to delete a branch that another
// branch derives from.
func (s *Store) DeleteBranch(ctx context.Context, ws ids.WorkspaceID, name string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var checkout string
		err := tx.QueryRow(`SELECT branch FROM checkouts WHERE workspace = ?`, ws.String()).Scan(&checkout)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("store: read checkout: %w", err)
		}
		if checkout == name {
			return &InvalidInputError{Msg: fmt.Sprintf("branch %q is the current checkout", name)}
		}
		if name == defaultBranch {
			return &InvalidInputError{Msg: "cannot delete the default branch"}
		}

		var derivedCount int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM branches WHERE workspace = ? AND base_branch = ?`, ws.String(), name).Scan(&derivedCount); err != nil {
			return fmt.Errorf("store: check derived branches: %w", err)
		}
		if derivedCount > 0 {
			return &InvalidInputError{Msg: fmt.Sprintf("branch %q has derived branches", name)}
		}

		res, err := tx.Exec(`DELETE FROM branches WHERE workspace = ? AND name = ?`, ws.String(), name)
		if err != nil {
			return fmt.Errorf("store: delete branch: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return &UnknownBranchError{Branch: name}
		}
		return nil
	})
}

// Checkout switches the workspace's currently selected branch.
func (s *Store) Checkout(ctx context.Context, ws ids.WorkspaceID, branch string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := nowMs()
		if err := ensureWorkspace(tx, ws, now); err != nil {
			return err
		}
		if err := ensureDefaultBranch(tx, ws, now); err != nil {
			return err
		}
		if _, err := branchSources(tx, ws, branch); err != nil {
			return err
		}
		_, err := tx.Exec(`INSERT INTO checkouts(workspace, branch) VALUES (?, ?)
			ON CONFLICT(workspace) DO UPDATE SET branch = excluded.branch`, ws.String(), branch)
		if err != nil {
			return fmt.Errorf("store: checkout: %w", err)
		}
		return nil
	})
}

// CurrentCheckout returns the workspace's currently selected branch,
// bootstrapping "default" if none has been set yet.
func (s *Store) CurrentCheckout(ctx context.Context, ws ids.WorkspaceID) (string, error) {
	var out string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := nowMs()
		if err := ensureWorkspace(tx, ws, now); err != nil {
			return err
		}
		if err := ensureDefaultBranch(tx, ws, now); err != nil {
			return err
		}
		return tx.QueryRow(`SELECT branch FROM checkouts WHERE workspace = ?`, ws.String()).Scan(&out)
	})
	return out, err
}

// GetBranch returns one branch's row.
func (s *Store) GetBranch(ctx context.Context, ws ids.WorkspaceID, name string) (Branch, error) {
	var b Branch
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRow(`SELECT name, base_branch, base_seq, created_at_ms FROM branches WHERE workspace = ? AND name = ?`,
			ws.String(), name).Scan(&b.Name, &b.BaseBranch, &b.BaseSeq, &b.CreatedAtMs)
		if err == sql.ErrNoRows {
			return &UnknownBranchError{Branch: name}
		}
		if err != nil {
			return fmt.Errorf("store: get branch: %w", err)
		}
		return nil
	})
	return b, err
}

// ListBranches returns every branch defined in the workspace.
func (s *Store) ListBranches(ctx context.Context, ws ids.WorkspaceID) ([]Branch, error) {
	var out []Branch
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT name, base_branch, base_seq, created_at_ms FROM branches WHERE workspace = ? ORDER BY name`, ws.String())
		if err != nil {
			return fmt.Errorf("store: list branches: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var b Branch
			if err := rows.Scan(&b.Name, &b.BaseBranch, &b.BaseSeq, &b.CreatedAtMs); err != nil {
				return fmt.Errorf("store: scan branch: %w", err)
			}
			out = append(out, b)
		}
		return rows.Err()
	})
	return out, err
}

// SourcesWhereClause exposes sourcesWhereClause to other packages (the
// graph engine) that query seq-ordered tables over the same branch
// inheritance chain but outside a store transaction.
func SourcesWhereClause(sources []BranchSource) (string, []any) {
	return sourcesWhereClause(sources)
}

// sourcesWhereClause builds the "(branch = ? [AND seq <= ?]) OR ..."
// fragment and its bind args for a query over a seq-ordered table,
// per spec.md §4.1.1.
func sourcesWhereClause(sources []BranchSource) (string, []any) {
	clause := ""
	var args []any
	for i, src := range sources {
		if i > 0 {
			clause += " OR "
		}
		if src.Cutoff != nil {
			clause += "(branch = ? AND seq <= ?)"
			args = append(args, src.Branch, *src.Cutoff)
		} else {
			clause += "(branch = ?)"
			args = append(args, src.Branch)
		}
	}
	if clause == "" {
		clause = "0"
	}
	return clause, args
}
