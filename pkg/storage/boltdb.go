package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/rebalancer/pkg/types"
)

var (
	// Bucket names
	bucketGoals       = []byte("goals")
	bucketStrategies  = []byte("strategies")
	bucketAudits      = []byte("audits")
	bucketActionPlans = []byte("action_plans")
)

// DBFile is the database file name inside the data directory
const DBFile = "rebalancer.db"

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, DBFile)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketGoals,
			bucketStrategies,
			bucketAudits,
			bucketActionPlans,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func put(tx *bolt.Tx, bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

// get decodes the record stored under key. found is false when the key is
// absent.
func get(tx *bolt.Tx, bucket []byte, key string, v any) (bool, error) {
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

// Goal operations, keyed by name
func (s *BoltStore) PutGoal(goal *types.Goal) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketGoals, goal.Name, goal)
	})
}

func (s *BoltStore) GetGoal(name string) (*types.Goal, error) {
	var goal types.Goal
	err := s.db.View(func(tx *bolt.Tx) error {
		found, err := get(tx, bucketGoals, name, &goal)
		if err != nil {
			return err
		}
		if !found || goal.Deleted() {
			return notFound("goal", name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &goal, nil
}

func (s *BoltStore) ListGoals() ([]*types.Goal, error) {
	var goals []*types.Goal
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGoals)
		return b.ForEach(func(k, v []byte) error {
			var goal types.Goal
			if err := json.Unmarshal(v, &goal); err != nil {
				return err
			}
			if !goal.Deleted() {
				goals = append(goals, &goal)
			}
			return nil
		})
	})
	return goals, err
}

func (s *BoltStore) SoftDeleteGoal(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var goal types.Goal
		found, err := get(tx, bucketGoals, name, &goal)
		if err != nil {
			return err
		}
		if !found || goal.Deleted() {
			return notFound("goal", name)
		}
		goal.DeletedAt = time.Now()
		return put(tx, bucketGoals, name, &goal)
	})
}

// Strategy operations, keyed by name
func (s *BoltStore) PutStrategy(strategy *types.StrategyRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketStrategies, strategy.Name, strategy)
	})
}

func (s *BoltStore) GetStrategy(name string) (*types.StrategyRecord, error) {
	var strategy types.StrategyRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		found, err := get(tx, bucketStrategies, name, &strategy)
		if err != nil {
			return err
		}
		if !found || strategy.Deleted() {
			return notFound("strategy", name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &strategy, nil
}

func (s *BoltStore) ListStrategies() ([]*types.StrategyRecord, error) {
	var strategies []*types.StrategyRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStrategies)
		return b.ForEach(func(k, v []byte) error {
			var strategy types.StrategyRecord
			if err := json.Unmarshal(v, &strategy); err != nil {
				return err
			}
			if !strategy.Deleted() {
				strategies = append(strategies, &strategy)
			}
			return nil
		})
	})
	return strategies, err
}

func (s *BoltStore) SoftDeleteStrategy(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var strategy types.StrategyRecord
		found, err := get(tx, bucketStrategies, name, &strategy)
		if err != nil {
			return err
		}
		if !found || strategy.Deleted() {
			return notFound("strategy", name)
		}
		strategy.DeletedAt = time.Now()
		return put(tx, bucketStrategies, name, &strategy)
	})
}

// Audit operations
func (s *BoltStore) CreateAudit(audit *types.Audit) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketAudits).Get([]byte(audit.ID)) != nil {
			return alreadyExists("audit", audit.ID)
		}
		return put(tx, bucketAudits, audit.ID, audit)
	})
}

func (s *BoltStore) GetAudit(id string) (*types.Audit, error) {
	var audit types.Audit
	err := s.db.View(func(tx *bolt.Tx) error {
		found, err := get(tx, bucketAudits, id, &audit)
		if err != nil {
			return err
		}
		if !found || audit.Deleted() {
			return notFound("audit", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &audit, nil
}

// ListAudits returns audits ordered by creation time
func (s *BoltStore) ListAudits() ([]*types.Audit, error) {
	var audits []*types.Audit
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAudits)
		return b.ForEach(func(k, v []byte) error {
			var audit types.Audit
			if err := json.Unmarshal(v, &audit); err != nil {
				return err
			}
			if !audit.Deleted() {
				audits = append(audits, &audit)
			}
			return nil
		})
	})
	sort.SliceStable(audits, func(i, j int) bool {
		return audits[i].CreatedAt.Before(audits[j].CreatedAt)
	})
	return audits, err
}

func (s *BoltStore) UpdateAudit(audit *types.Audit) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var existing types.Audit
		found, err := get(tx, bucketAudits, audit.ID, &existing)
		if err != nil {
			return err
		}
		if !found || existing.Deleted() {
			return notFound("audit", audit.ID)
		}
		return put(tx, bucketAudits, audit.ID, audit)
	})
}

func (s *BoltStore) ModifyAudit(id string, fn func(*types.Audit) error) (*types.Audit, error) {
	var audit types.Audit
	err := s.db.Update(func(tx *bolt.Tx) error {
		found, err := get(tx, bucketAudits, id, &audit)
		if err != nil {
			return err
		}
		if !found || audit.Deleted() {
			return notFound("audit", id)
		}
		if err := fn(&audit); err != nil {
			return err
		}
		return put(tx, bucketAudits, id, &audit)
	})
	if err != nil {
		return nil, err
	}
	return &audit, nil
}

func (s *BoltStore) SoftDeleteAudit(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var audit types.Audit
		found, err := get(tx, bucketAudits, id, &audit)
		if err != nil {
			return err
		}
		if !found || audit.Deleted() {
			return notFound("audit", id)
		}
		audit.DeletedAt = time.Now()
		return put(tx, bucketAudits, id, &audit)
	})
}

// Action plan operations
func (s *BoltStore) CreateActionPlan(plan *types.ActionPlan) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketActionPlans).Get([]byte(plan.ID)) != nil {
			return alreadyExists("action plan", plan.ID)
		}
		return put(tx, bucketActionPlans, plan.ID, plan)
	})
}

func (s *BoltStore) GetActionPlan(id string) (*types.ActionPlan, error) {
	var plan types.ActionPlan
	err := s.db.View(func(tx *bolt.Tx) error {
		found, err := get(tx, bucketActionPlans, id, &plan)
		if err != nil {
			return err
		}
		if !found || plan.Deleted() {
			return notFound("action plan", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetActionPlanByAudit returns the most recent plan produced for an audit
func (s *BoltStore) GetActionPlanByAudit(auditID string) (*types.ActionPlan, error) {
	plans, err := s.ListActionPlans()
	if err != nil {
		return nil, err
	}

	var latest *types.ActionPlan
	for _, plan := range plans {
		if plan.AuditID == auditID {
			latest = plan
		}
	}
	if latest == nil {
		return nil, notFound("action plan for audit", auditID)
	}
	return latest, nil
}

// ListActionPlans returns plans ordered by creation time
func (s *BoltStore) ListActionPlans() ([]*types.ActionPlan, error) {
	var plans []*types.ActionPlan
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketActionPlans)
		return b.ForEach(func(k, v []byte) error {
			var plan types.ActionPlan
			if err := json.Unmarshal(v, &plan); err != nil {
				return err
			}
			if !plan.Deleted() {
				plans = append(plans, &plan)
			}
			return nil
		})
	})
	sort.SliceStable(plans, func(i, j int) bool {
		return plans[i].CreatedAt.Before(plans[j].CreatedAt)
	})
	return plans, err
}

func (s *BoltStore) UpdateActionPlan(plan *types.ActionPlan) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var existing types.ActionPlan
		found, err := get(tx, bucketActionPlans, plan.ID, &existing)
		if err != nil {
			return err
		}
		if !found || existing.Deleted() {
			return notFound("action plan", plan.ID)
		}
		return put(tx, bucketActionPlans, plan.ID, plan)
	})
}
