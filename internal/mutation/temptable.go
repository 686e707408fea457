package mutation

import (
	"fmt"

	"github.com/stratumdb/stratum/internal/meta"
)

// AfterUseAction selects what happens to a staging table once the
// mutation sequence that used it completes.
type AfterUseAction int

const (
	// AfterUseClean deletes this unit of work's staged rows and keeps the
	// table. Safe under concurrent sharing: every staging read filters by
	// session uid.
	AfterUseClean AfterUseAction = iota

	// AfterUseDrop drops the whole table. Only valid when the table is
	// known not to be shared with a concurrently running unit of work.
	AfterUseDrop

	// AfterUseNone leaves the staged rows in place.
	AfterUseNone
)

// String returns the policy name used in logs and CLI output.
func (a AfterUseAction) String() string {
	switch a {
	case AfterUseClean:
		return "clean"
	case AfterUseDrop:
		return "drop"
	case AfterUseNone:
		return "none"
	default:
		return "unknown"
	}
}

const (
	stagingPrefix    = "stg_"
	stagingUIDColumn = "uow_uid"
)

// TempTable describes the staging table of one entity hierarchy: the
// relation holding the primary keys a bulk mutation's predicate matched,
// tagged with the session uid of the unit of work that staged them.
type TempTable struct {
	Name      string
	KeyColumn string
	KeyType   string
	UIDColumn string
}

// StagingTableFor derives the staging descriptor for an entity hierarchy.
// The name derives from the hierarchy root table, so every entity of one
// hierarchy shares a single physical staging table.
func StagingTableFor(e *meta.Entity) (TempTable, error) {
	root := e.RootTable()
	if root == nil {
		return TempTable{}, fmt.Errorf("entity %s maps no tables", e.Name)
	}
	if e.IDColumn == "" || e.IDType == "" {
		return TempTable{}, fmt.Errorf("entity %s has no identifier mapping to stage", e.Name)
	}
	return TempTable{
		Name:      stagingPrefix + root.Name,
		KeyColumn: e.IDColumn,
		KeyType:   e.IDType,
		UIDColumn: stagingUIDColumn,
	}, nil
}

// CreateSQL renders the before-use DDL. IF NOT EXISTS keeps creation
// idempotent across the sessions sharing the table.
func (t TempTable) CreateSQL() string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s %s NOT NULL, %s TEXT NOT NULL)",
		t.Name, t.KeyColumn, t.KeyType, t.UIDColumn)
}

// DropSQL renders the drop form of the after-use action.
func (t TempTable) DropSQL() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", t.Name)
}
