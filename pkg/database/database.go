package database

import (
	"fmt"
	"log"
	"math_practice_backend/internal/config"
	"math_practice_backend/internal/model"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DBName,
		cfg.Database.Charset,
		cfg.Database.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	// release 模式下表结构由运维管理，仅 -migrate 时执行
	if cfg.Server.Mode == "release" && !cfg.ForceMigrate {
		log.Println("Auto migration skipped in release mode")
		return db, nil
	}

	err = db.AutoMigrate(
		&model.User{},
		&model.PracticeSession{},
	)

	if err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	// 用户表为空时写入初始管理员
	var userCount int64
	db.Model(&model.User{}).Count(&userCount)
	if userCount == 0 {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Admin.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		admin := &model.User{
			Name:     "管理员",
			Email:    cfg.Admin.Email,
			Password: string(hash),
			Role:     model.Admin,
		}
		if err := db.Create(admin).Error; err != nil {
			return nil, err
		}
		log.Printf("Seeded default admin account %s", cfg.Admin.Email)
	}

	return db, nil
}
