package portfolio

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"noirkit/internal/database"
)

func newRepositoryTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&database.SocialLink{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedSocialLinks(t *testing.T, db *gorm.DB) {
	t.Helper()
	rows := []database.SocialLink{
		{Model: gorm.Model{ID: 1}, UserID: 1, Platform: "github", OrderIndex: 0},
		{Model: gorm.Model{ID: 2}, UserID: 1, Platform: "twitter", OrderIndex: 1},
		{Model: gorm.Model{ID: 3}, UserID: 1, Platform: "mastodon", OrderIndex: 2},
		{Model: gorm.Model{ID: 4}, UserID: 2, Platform: "github", OrderIndex: 0},
	}
	for _, row := range rows {
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("seed social link %d: %v", row.ID, err)
		}
	}
}

func loadOrderIndexes(t *testing.T, db *gorm.DB, ownerID uint) map[uint]int {
	t.Helper()
	var rows []database.SocialLink
	if err := db.Where("user_id = ?", ownerID).Find(&rows).Error; err != nil {
		t.Fatalf("load social links: %v", err)
	}
	out := make(map[uint]int, len(rows))
	for _, row := range rows {
		out[row.ID] = row.OrderIndex
	}
	return out
}

func TestGormRepositoryReorderPersistsOrderIndex(t *testing.T) {
	db := newRepositoryTestDB(t)
	seedSocialLinks(t, db)
	repo := NewGormRepository(db)

	if err := repo.ReorderSocialLinks(context.Background(), 1, []uint{3, 1, 2}); err != nil {
		t.Fatalf("ReorderSocialLinks: %v", err)
	}

	// 每条记录的 order_index 等于它在给定列表里的位置。
	got := loadOrderIndexes(t, db, 1)
	want := map[uint]int{3: 0, 1: 1, 2: 2}
	for id, index := range want {
		if got[id] != index {
			t.Fatalf("id %d persisted order_index = %d, want %d", id, got[id], index)
		}
	}

	// 所有者作用域：用他人 id 重排不报错也不改动他人的行。
	if err := repo.ReorderSocialLinks(context.Background(), 1, []uint{4}); err != nil {
		t.Fatalf("reorder with foreign id: %v", err)
	}
	if other := loadOrderIndexes(t, db, 2); other[4] != 0 {
		t.Fatalf("foreign owner row changed, order_index = %d", other[4])
	}
}

func TestGormRepositoryReorderRollsBackOnFailure(t *testing.T) {
	db := newRepositoryTestDB(t)
	seedSocialLinks(t, db)
	repo := NewGormRepository(db)

	// 让序列中最后一条更新失败，验证事务整体回滚而非留下部分重排。
	trigger := `CREATE TRIGGER block_reorder BEFORE UPDATE OF order_index ON social_links
		WHEN OLD.id = 2 BEGIN SELECT RAISE(ABORT, 'reorder blocked'); END`
	if err := db.Exec(trigger).Error; err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	if err := repo.ReorderSocialLinks(context.Background(), 1, []uint{3, 1, 2}); err == nil {
		t.Fatal("expected reorder error")
	}

	got := loadOrderIndexes(t, db, 1)
	want := map[uint]int{1: 0, 2: 1, 3: 2}
	for id, index := range want {
		if got[id] != index {
			t.Fatalf("id %d order_index = %d after rollback, want seeded %d", id, got[id], index)
		}
	}
}
