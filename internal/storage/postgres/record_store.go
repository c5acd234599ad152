// Package postgres persists scraped papers into Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/kmt-crawler/internal/archive"
)

var validTablePrefix = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RecordStoreConfig controls the Postgres connection pool used for paper rows.
type RecordStoreConfig struct {
	DSN string
	// TablePrefix is prepended to the papers, reactions and molecules tables.
	TablePrefix     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type txBeginCloser interface {
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// RecordStore writes one run's papers, reactions and molecules.
type RecordStore struct {
	pool      txBeginCloser
	papers    string
	reactions string
	molecules string
}

// NewRecordStore creates a Postgres-backed RecordStore using the provided config.
func NewRecordStore(ctx context.Context, cfg RecordStoreConfig) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewRecordStoreWithPool(pool, cfg.TablePrefix)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(pool txBeginCloser, tablePrefix string) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if tablePrefix != "" && !validTablePrefix.MatchString(tablePrefix) {
		return nil, fmt.Errorf("invalid table prefix %q", tablePrefix)
	}
	return &RecordStore{
		pool:      pool,
		papers:    tablePrefix + "papers",
		reactions: tablePrefix + "reactions",
		molecules: tablePrefix + "molecules",
	}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the tables when they do not exist.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, stmt := range s.schema() {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
		}
		return nil
	})
}

func (s *RecordStore) schema() []string {
	return []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id          TEXT NOT NULL,
	paper_index     INTEGER NOT NULL,
	doi             TEXT,
	details_scanned INTEGER NOT NULL,
	error           TEXT,
	PRIMARY KEY (run_id, paper_index)
)`, s.papers),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id                  TEXT NOT NULL,
	paper_index             INTEGER NOT NULL,
	reaction_index          INTEGER NOT NULL,
	details_url             TEXT NOT NULL,
	overall_reaction_smiles TEXT,
	PRIMARY KEY (run_id, paper_index, reaction_index)
)`, s.reactions),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id         TEXT NOT NULL,
	paper_index    INTEGER NOT NULL,
	reaction_index INTEGER NOT NULL,
	molecule_index INTEGER NOT NULL,
	role           TEXT,
	inchi_key      TEXT,
	smiles         TEXT,
	name           TEXT,
	ratio          TEXT,
	PRIMARY KEY (run_id, paper_index, reaction_index, molecule_index)
)`, s.molecules),
	}
}

// SavePapers inserts every paper of a run in a single transaction.
func (s *RecordStore) SavePapers(ctx context.Context, runID string, papers []archive.PaperRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	paperQuery := fmt.Sprintf(`INSERT INTO %s (run_id, paper_index, doi, details_scanned, error) VALUES ($1,$2,$3,$4,$5)`, s.papers)
	reactionQuery := fmt.Sprintf(`INSERT INTO %s (run_id, paper_index, reaction_index, details_url, overall_reaction_smiles) VALUES ($1,$2,$3,$4,$5)`, s.reactions)
	moleculeQuery := fmt.Sprintf(`INSERT INTO %s (run_id, paper_index, reaction_index, molecule_index, role, inchi_key, smiles, name, ratio) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, s.molecules)

	return s.inTx(ctx, func(tx pgx.Tx) error {
		for pi, p := range papers {
			if _, err := tx.Exec(ctx, paperQuery, runID, pi, p.DOI, p.DetailsScanned, p.Error); err != nil {
				return fmt.Errorf("insert paper %d: %w", pi, err)
			}
			for ri, r := range p.Reactions {
				if _, err := tx.Exec(ctx, reactionQuery, runID, pi, ri, r.DetailsURL, r.OverallReactionSMILES); err != nil {
					return fmt.Errorf("insert reaction %s: %w", r.DetailsURL, err)
				}
				for mi, m := range r.Molecules {
					if _, err := tx.Exec(ctx, moleculeQuery, runID, pi, ri, mi, m.Role, m.InChIKey, m.SMILES, m.Name, m.Ratio); err != nil {
						return fmt.Errorf("insert molecule %d of %s: %w", mi, r.DetailsURL, err)
					}
				}
			}
		}
		return nil
	})
}

func (s *RecordStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
