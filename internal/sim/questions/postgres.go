package questions

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type questionRow struct {
	ID        uint     `gorm:"primaryKey"`
	Text      string   `gorm:"not null"`
	Options   []string `gorm:"serializer:json;type:text;not null"`
	Answer    string   `gorm:"not null"`
	CreatedAt time.Time
}

func (questionRow) TableName() string { return "duel_questions" }

// PostgresBank draws random questions from the duel_questions table.
type PostgresBank struct {
	db  *gorm.DB
	log *zap.Logger
}

// OpenPostgres connects and migrates the question table.
func OpenPostgres(dsn string, log *zap.Logger) (*PostgresBank, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open question db: %w", err)
	}
	if err := db.AutoMigrate(&questionRow{}); err != nil {
		return nil, fmt.Errorf("migrate question db: %w", err)
	}
	return &PostgresBank{db: db, log: log.Named("questions")}, nil
}

// Seed inserts qs when the table is empty.
func (b *PostgresBank) Seed(ctx context.Context, qs []Question) error {
	var n int64
	if err := b.db.WithContext(ctx).Model(&questionRow{}).Count(&n).Error; err != nil {
		return fmt.Errorf("count questions: %w", err)
	}
	if n > 0 {
		return nil
	}
	rows := make([]questionRow, len(qs))
	for i, q := range qs {
		rows[i] = questionRow{Text: q.Text, Options: q.Options, Answer: q.Answer}
	}
	if err := b.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("seed questions: %w", err)
	}
	b.log.Info("seeded question bank", zap.Int("count", len(rows)))
	return nil
}

func (b *PostgresBank) Draw(ctx context.Context, n int) ([]Question, error) {
	var rows []questionRow
	err := b.db.WithContext(ctx).Order("random()").Limit(n).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("draw questions: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyBank
	}
	out := make([]Question, len(rows))
	for i, r := range rows {
		out[i] = Question{
			ID:      "q" + strconv.FormatUint(uint64(r.ID), 10),
			Text:    r.Text,
			Options: r.Options,
			Answer:  r.Answer,
		}
	}
	return out, nil
}

func (b *PostgresBank) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
