package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"parish/config"
	"parish/database"
	"parish/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	admin     = Actor{UserID: 1, Username: "admin", Role: RoleAdministrator}
	treasurer = Actor{UserID: 2, Username: "bendahara", Role: "bendahara"}
	staff     = Actor{UserID: 3, Username: "staff", Role: RoleStaff}
)

// 默认类别由迁移写入
const (
	incomeCategoryID      uint = 1
	expenditureCategoryID uint = 2
)

func testPolicy() Policy {
	p := DefaultPolicy()
	p.WriteRoles = []string{RoleAdministrator, "bendahara"}
	return p
}

// newTestBudget 每个测试一个临时 SQLite 文件
func newTestBudget(t *testing.T, policy Policy) (*Budget, *gorm.DB) {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver:   "sqlite",
		Path:     filepath.Join(t.TempDir(), "parish.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return New(db, policy), db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		panic(err)
	}
	return t
}

func leaf(freq int, amount string) *models.LeafTarget {
	return &models.LeafTarget{Frequency: freq, Unit: "kali", Amount: dec(amount)}
}

func mustNode(t *testing.T, b *Budget, in CreateNodeInput) *models.ItemNode {
	t.Helper()
	n, err := b.Tree.CreateNode(context.Background(), admin, in)
	require.NoError(t, err)
	return n
}

// buildChain 在类别下建一条 1→2→3→4 的链，返回各层节点
func buildChain(t *testing.T, b *Budget, categoryID uint, name string, l *models.LeafTarget) []*models.ItemNode {
	t.Helper()
	n1 := mustNode(t, b, CreateNodeInput{CategoryID: categoryID, Name: name, Level: 1})
	n2 := mustNode(t, b, CreateNodeInput{ParentID: &n1.ID, Name: name + " 2", Level: 2})
	n3 := mustNode(t, b, CreateNodeInput{ParentID: &n2.ID, Name: name + " 3", Level: 3})
	n4 := mustNode(t, b, CreateNodeInput{ParentID: &n3.ID, Name: name + " 4", Level: 4, Leaf: l})
	return []*models.ItemNode{n1, n2, n3, n4}
}

func mustPeriod(t *testing.T, b *Budget, start, end string) *models.Period {
	t.Helper()
	p, err := b.Periods.CreatePeriod(context.Background(), admin, CreatePeriodInput{
		Year:      day(start).Year(),
		StartDate: day(start),
		EndDate:   day(end),
	})
	require.NoError(t, err)
	return p
}

// snapshotByTemplate 期间快照按模板 id 索引
func snapshotByTemplate(t *testing.T, b *Budget, periodID uint) map[uint]models.SnapshotItem {
	t.Helper()
	items, err := b.Populator.Snapshot(context.Background(), periodID)
	require.NoError(t, err)
	out := make(map[uint]models.SnapshotItem, len(items))
	for _, it := range items {
		out[it.TemplateItemID] = it
	}
	return out
}
