package database

import (
	"fmt"
	"log"

	"frubric_backend/internal/config"
	"frubric_backend/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig, debug bool) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	level := logger.Warn
	if debug {
		level = logger.Info
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")
	return db, nil
}

// Migrate 创建或更新 frubric_ 前缀的全部表
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.GradingArea{},
		&model.GradingDefinition{},
		&model.Criterion{},
		&model.Level{},
		&model.Descriptor{},
		&model.GradingInstance{},
		&model.Filling{},
		&model.Outcome{},
		&model.OutcomeGrade{},
		&model.GradeCategory{},
	)
	if err != nil {
		return err
	}
	log.Println("Database migration completed")
	return nil
}
