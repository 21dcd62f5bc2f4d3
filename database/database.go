package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"parish/config"
	"parish/models"

	"github.com/glebarez/sqlite"
	_ "github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Init 初始化数据库连接
func Init(cfg *config.Config) error {
	db, err := Open(cfg.Database)
	if err != nil {
		return err
	}
	if err := Migrate(db); err != nil {
		return err
	}
	DB = db
	log.Println("数据库初始化成功")
	return nil
}

// Open 按驱动打开数据库连接并配置连接池
func Open(dbCfg config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(dbCfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel(dbCfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 获取底层 *sql.DB 连接池配置
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if dbCfg.Driver == "sqlite" {
		// SQLite 单写者，单连接避免 database is locked
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)  // 最大空闲连接数
		sqlDB.SetMaxOpenConns(100) // 最大打开连接数
	}

	return db, nil
}

func dialectorFor(dbCfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch dbCfg.Driver {
	case "mysql":
		// 构建 MySQL DSN 连接字符串
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=True&loc=Local",
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			dbCfg.Charset,
		)
		return mysql.Open(dsn), nil
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.DBName,
			dbCfg.SSLMode,
		)
		// 使用 lib/pq 建立连接，再交给 gorm 的 postgres 方言
		sqlDB, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("打开 postgres 连接失败: %w", err)
		}
		return postgres.New(postgres.Config{Conn: sqlDB}), nil
	case "sqlite":
		if dir := filepath.Dir(dbCfg.Path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("创建数据库目录失败: %w", err)
			}
		}
		// WAL 下读事务是一致快照，报表读取不阻塞填充写入
		return sqlite.Open(dbCfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"), nil
	}
	return nil, fmt.Errorf("不支持的数据库驱动: %s", dbCfg.Driver)
}

func logLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	}
	return logger.Warn
}

// Migrate 自动迁移预算相关表，并在类别表为空时写入默认类别
func Migrate(db *gorm.DB) error {
	// 自动迁移数据库表
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("自动迁移失败: %w", err)
	}

	// 初始化默认预算类别（仅当表为空时）
	var catCount int64
	if err := db.Model(&models.Category{}).Count(&catCount).Error; err != nil {
		return fmt.Errorf("统计类别失败: %w", err)
	}
	if catCount == 0 {
		cats := models.DefaultCategories()
		if err := db.Create(&cats).Error; err != nil {
			return fmt.Errorf("初始化默认类别失败: %w", err)
		}
	}
	return nil
}

// GetDB 获取数据库连接
func GetDB() *gorm.DB {
	return DB
}
