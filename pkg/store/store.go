package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	sqlx "github.com/jmoiron/sqlx" //make alias name the package to sqlx
	_ "modernc.org/sqlite"

	snemo "github.com/next-exp/snemo_go/pkg"
	"github.com/next-exp/snemo_go/pkg/cat"
	"github.com/next-exp/snemo_go/pkg/trigger"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Store keeps reconstruction and trigger results of many runs.
type Store struct {
	db     *sqlx.DB
	driver string
}

// Open connects with driver "mysql" or "sqlite".
func Open(driver string, dsn string) (*Store, error) {
	switch driver {
	case "mysql", "sqlite":
	default:
		return nil, &snemo.ConfigurationError{Key: "db_driver", Reason: "unsupported driver " + driver}
	}
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error connecting to %s database: %w", driver, err)
	}
	if driver == "sqlite" {
		// a single connection keeps the file free of writer contention
		db.SetMaxOpenConns(1)
	}
	return &Store{db: db, driver: driver}, nil
}

func ConnectMySQL(user string, pass string, host string, dbname string) (*Store, error) {
	port := "3306"
	dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
	return Open("mysql", dbURI)
}

// OpenConfigured opens the store described by the run configuration.
func OpenConfigured(config snemo.Configuration) (*Store, error) {
	if config.DBDriver == "mysql" && config.DSN == "" {
		return ConnectMySQL(config.User, config.Passwd, config.Host, config.DBName)
	}
	return Open(config.DBDriver, config.DSN)
}

func (s *Store) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		label VARCHAR(255) NOT NULL,
		created BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS solutions (
		run_id VARCHAR(36) NOT NULL,
		event INTEGER NOT NULL,
		solution_id INTEGER NOT NULL,
		clusterizer VARCHAR(32) NOT NULL,
		n_clusters INTEGER NOT NULL,
		n_unclustered INTEGER NOT NULL,
		PRIMARY KEY (run_id, event, solution_id)
	)`,
	`CREATE TABLE IF NOT EXISTS clusters (
		run_id VARCHAR(36) NOT NULL,
		event INTEGER NOT NULL,
		solution_id INTEGER NOT NULL,
		cluster_id INTEGER NOT NULL,
		n_hits INTEGER NOT NULL,
		hit_ids TEXT NOT NULL,
		aux TEXT NOT NULL,
		PRIMARY KEY (run_id, event, solution_id, cluster_id)
	)`,
	`CREATE TABLE IF NOT EXISTS trigger_decisions (
		run_id VARCHAR(36) NOT NULL,
		event INTEGER NOT NULL,
		idx INTEGER NOT NULL,
		clocktick_1600 INTEGER NOT NULL,
		mode VARCHAR(32) NOT NULL,
		PRIMARY KEY (run_id, event, idx)
	)`,
}

// Migrate creates the tables that do not exist yet.
func (s *Store) Migrate() error {
	for _, stmt := range schema {
		if snemo.Verbosity() > 2 {
			snemo.Log().Info(fmt.Sprintf("Query: %s", stmt), "store")
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("error creating schema: %w", err)
		}
	}
	return nil
}

type RunRow struct {
	ID      string `db:"id"`
	Label   string `db:"label"`
	Created int64  `db:"created"`
}

type SolutionRow struct {
	RunID        string `db:"run_id"`
	Event        int    `db:"event"`
	SolutionID   int    `db:"solution_id"`
	Clusterizer  string `db:"clusterizer"`
	NClusters    int    `db:"n_clusters"`
	NUnclustered int    `db:"n_unclustered"`
}

// ClusterRow stores the hit ids and the cluster annotations as JSON.
type ClusterRow struct {
	RunID      string `db:"run_id"`
	Event      int    `db:"event"`
	SolutionID int    `db:"solution_id"`
	ClusterID  int    `db:"cluster_id"`
	NHits      int    `db:"n_hits"`
	HitIDs     string `db:"hit_ids"`
	Aux        string `db:"aux"`
}

type DecisionRow struct {
	RunID         string `db:"run_id"`
	Event         int    `db:"event"`
	Index         int    `db:"idx"`
	Clocktick1600 int    `db:"clocktick_1600"`
	Mode          string `db:"mode"`
}

func (s *Store) NewRun(label string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.NamedExec(`INSERT INTO runs (id, label, created) VALUES (:id, :label, :created)`,
		RunRow{ID: id.String(), Label: label, Created: time.Now().Unix()})
	if err != nil {
		return uuid.Nil, fmt.Errorf("error inserting run: %w", err)
	}
	if snemo.Verbosity() > 0 {
		snemo.Log().Info(fmt.Sprintf("Run %s registered with label %q", id, label), "store")
	}
	return id, nil
}

func (s *Store) Runs() ([]RunRow, error) {
	var runs []RunRow
	err := s.db.Select(&runs, `SELECT id, label, created FROM runs ORDER BY created, id`)
	return runs, err
}

// inTx runs fn in one transaction, rolled back when fn fails.
func (s *Store) inTx(fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	return tx.Commit()
}

func hitIDs(hits []*snemo.TrackerHit) (string, error) {
	ids := make([]int, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	data, err := json.Marshal(ids)
	return string(data), err
}

// SaveSolutions stores the solutions of one event.
func (s *Store) SaveSolutions(run uuid.UUID, event int, solutions []cat.ClusteringSolution) error {
	return s.inTx(func(tx *sqlx.Tx) error {
		for _, sol := range solutions {
			clusterizer, _ := sol.Aux.Text("clusterizer_id")
			row := SolutionRow{
				RunID:        run.String(),
				Event:        event,
				SolutionID:   sol.SolutionID,
				Clusterizer:  clusterizer,
				NClusters:    len(sol.Clusters),
				NUnclustered: len(sol.Unclustered),
			}
			_, err := tx.NamedExec(`INSERT INTO solutions (run_id, event, solution_id, clusterizer, n_clusters, n_unclustered)
				VALUES (:run_id, :event, :solution_id, :clusterizer, :n_clusters, :n_unclustered)`, row)
			if err != nil {
				return fmt.Errorf("error inserting solution %d of event %d: %w", sol.SolutionID, event, err)
			}
			for _, cluster := range sol.Clusters {
				ids, err := hitIDs(cluster.Hits)
				if err != nil {
					return err
				}
				aux, err := json.Marshal(cluster.Aux)
				if err != nil {
					return fmt.Errorf("error encoding cluster aux: %w", err)
				}
				_, err = tx.NamedExec(`INSERT INTO clusters (run_id, event, solution_id, cluster_id, n_hits, hit_ids, aux)
					VALUES (:run_id, :event, :solution_id, :cluster_id, :n_hits, :hit_ids, :aux)`, ClusterRow{
					RunID:      run.String(),
					Event:      event,
					SolutionID: sol.SolutionID,
					ClusterID:  cluster.ID,
					NHits:      len(cluster.Hits),
					HitIDs:     ids,
					Aux:        string(aux),
				})
				if err != nil {
					return fmt.Errorf("error inserting cluster %d of event %d: %w", cluster.ID, event, err)
				}
			}
		}
		return nil
	})
}

// SaveDecisions stores the L2 decisions of one event.
func (s *Store) SaveDecisions(run uuid.UUID, event int, result *trigger.Result) error {
	return s.inTx(func(tx *sqlx.Tx) error {
		for i, l2 := range result.L2 {
			_, err := tx.NamedExec(`INSERT INTO trigger_decisions (run_id, event, idx, clocktick_1600, mode)
				VALUES (:run_id, :event, :idx, :clocktick_1600, :mode)`, DecisionRow{
				RunID:         run.String(),
				Event:         event,
				Index:         i,
				Clocktick1600: l2.Clocktick1600,
				Mode:          l2.Mode.String(),
			})
			if err != nil {
				return fmt.Errorf("error inserting decision %d of event %d: %w", i, event, err)
			}
		}
		return nil
	})
}

func (s *Store) Solutions(run uuid.UUID) ([]SolutionRow, error) {
	var rows []SolutionRow
	err := s.db.Select(&rows, s.db.Rebind(`SELECT run_id, event, solution_id, clusterizer, n_clusters, n_unclustered
		FROM solutions WHERE run_id = ? ORDER BY event, solution_id`), run.String())
	return rows, err
}

func (s *Store) Clusters(run uuid.UUID, event int) ([]ClusterRow, error) {
	var rows []ClusterRow
	err := s.db.Select(&rows, s.db.Rebind(`SELECT run_id, event, solution_id, cluster_id, n_hits, hit_ids, aux
		FROM clusters WHERE run_id = ? AND event = ? ORDER BY solution_id, cluster_id`), run.String(), event)
	return rows, err
}

func (s *Store) Decisions(run uuid.UUID) ([]DecisionRow, error) {
	var rows []DecisionRow
	err := s.db.Select(&rows, s.db.Rebind(`SELECT run_id, event, idx, clocktick_1600, mode
		FROM trigger_decisions WHERE run_id = ? ORDER BY event, idx`), run.String())
	return rows, err
}
