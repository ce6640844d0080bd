package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"robot-telemetry/pkg/model"
)

// GormStore persists through gorm; used with the MySQL connection from pkg/db.
type GormStore struct {
	db *gorm.DB
}

// NewGorm wraps db and migrates the telemetry tables.
func NewGorm(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&model.Robot{}, &model.TelemetrySample{}, &model.CommandRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (g *GormStore) EnsureRobot(ctx context.Context, r model.Robot) (model.Robot, error) {
	created, err := g.CreateRobot(ctx, r)
	if errors.Is(err, ErrExists) {
		return g.GetRobot(ctx, r.ID)
	}
	return created, err
}

func (g *GormStore) CreateRobot(ctx context.Context, r model.Robot) (model.Robot, error) {
	res := g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&r)
	if res.Error != nil {
		return model.Robot{}, fmt.Errorf("insert robot %s: %w", r.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return model.Robot{}, ErrExists
	}
	return r, nil
}

func (g *GormStore) UpdateRobot(ctx context.Context, r model.Robot) (model.Robot, error) {
	r.UpdatedAt = time.Now().UTC()
	res := g.db.WithContext(ctx).Model(&model.Robot{ID: r.ID}).
		Select("name", "description", "location", "is_active", "current_command", "updated_at").
		Updates(r)
	if res.Error != nil {
		return model.Robot{}, fmt.Errorf("update robot %s: %w", r.ID, res.Error)
	}
	// MySQL reports zero affected rows for unchanged values, so check existence separately.
	return g.GetRobot(ctx, r.ID)
}

func (g *GormStore) GetRobot(ctx context.Context, id string) (model.Robot, error) {
	var r model.Robot
	err := g.db.WithContext(ctx).First(&r, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Robot{}, ErrNotFound
	}
	if err != nil {
		return model.Robot{}, fmt.Errorf("get robot %s: %w", id, err)
	}
	return r, nil
}

func (g *GormStore) ListRobots(ctx context.Context, activeOnly bool) ([]model.Robot, error) {
	out := make([]model.Robot, 0)
	if err := listRobotsQuery(g.db.WithContext(ctx), activeOnly).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list robots: %w", err)
	}
	return out, nil
}

func (g *GormStore) InsertSample(ctx context.Context, s model.TelemetrySample) (model.TelemetrySample, error) {
	s.RobotID = robotIDOrDefault(s.RobotID)
	if err := g.db.WithContext(ctx).Create(&s).Error; err != nil {
		return s, fmt.Errorf("insert telemetry: %w", err)
	}
	return s, nil
}

func (g *GormStore) LatestSample(ctx context.Context, robotID string) (model.TelemetrySample, error) {
	rows, err := g.RecentSamples(ctx, SampleQuery{RobotID: robotID, Limit: 1})
	if err != nil {
		return model.TelemetrySample{}, err
	}
	if len(rows) == 0 {
		return model.TelemetrySample{}, ErrNotFound
	}
	return rows[0], nil
}

func (g *GormStore) RecentSamples(ctx context.Context, q SampleQuery) ([]model.TelemetrySample, error) {
	out := make([]model.TelemetrySample, 0)
	if err := recentSamplesQuery(g.db.WithContext(ctx), q).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query telemetry: %w", err)
	}
	return out, nil
}

func (g *GormStore) InsertCommand(ctx context.Context, c model.CommandRecord) (model.CommandRecord, error) {
	c.RobotID = robotIDOrDefault(c.RobotID)
	if c.ExecutedAt.IsZero() {
		c.ExecutedAt = time.Now().UTC()
	}
	if err := g.db.WithContext(ctx).Create(&c).Error; err != nil {
		return c, fmt.Errorf("insert command: %w", err)
	}
	return c, nil
}

func (g *GormStore) ListCommands(ctx context.Context, robotID string, limit int) ([]model.CommandRecord, error) {
	out := make([]model.CommandRecord, 0)
	if err := listCommandsQuery(g.db.WithContext(ctx), robotID, limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query commands: %w", err)
	}
	return out, nil
}

func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func listRobotsQuery(db *gorm.DB, activeOnly bool) *gorm.DB {
	tx := db.Model(&model.Robot{})
	if activeOnly {
		tx = tx.Where("is_active = ?", true)
	}
	return tx.Order("id")
}

func recentSamplesQuery(db *gorm.DB, q SampleQuery) *gorm.DB {
	tx := db.Model(&model.TelemetrySample{}).Where("robot_id = ?", robotIDOrDefault(q.RobotID))
	if !q.Since.IsZero() {
		tx = tx.Where("timestamp >= ?", q.Since)
	}
	if !q.Until.IsZero() {
		tx = tx.Where("timestamp <= ?", q.Until)
	}
	tx = tx.Order("timestamp DESC").Order("id DESC")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	return tx
}

func listCommandsQuery(db *gorm.DB, robotID string, limit int) *gorm.DB {
	tx := db.Model(&model.CommandRecord{})
	if robotID != "" {
		tx = tx.Where("robot_id = ?", robotID)
	}
	tx = tx.Order("executed_at DESC").Order("id DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	return tx
}
