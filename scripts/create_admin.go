// 创建或重置管理员账号脚本
//
// 默认管理员在首次迁移时自动写入，此脚本用于找回密码，
// 或在已有数据库上补建管理员账号。
//
// 用法: go run scripts/create_admin.go -email admin@example.com -password <新密码>

package main

import (
	"flag"
	"log"
	"math_practice_backend/internal/config"
	"math_practice_backend/internal/model"
	"math_practice_backend/pkg/database"
	"math_practice_backend/pkg/logger"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func main() {
	email := flag.String("email", "", "管理员邮箱，默认取配置中的 admin.email")
	password := flag.String("password", "", "管理员密码，默认取配置中的 admin.password")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	logger.InitLogger(cfg)

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	if *email == "" {
		*email = cfg.Admin.Email
	}
	if *password == "" {
		*password = cfg.Admin.Password
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("密码加密失败: %v", err)
	}

	var user model.User
	err = db.Where("email = ?", *email).First(&user).Error
	switch {
	case err == nil:
		user.Password = string(hash)
		user.Role = model.Admin
		user.Disabled = false
		if err := db.Save(&user).Error; err != nil {
			log.Fatalf("更新管理员失败: %v", err)
		}
		log.Printf("管理员 %s 密码已重置", *email)
	case err == gorm.ErrRecordNotFound:
		user = model.User{
			Name:     "管理员",
			Email:    *email,
			Password: string(hash),
			Role:     model.Admin,
		}
		if err := db.Create(&user).Error; err != nil {
			log.Fatalf("创建管理员失败: %v", err)
		}
		log.Printf("管理员 %s 已创建", *email)
	default:
		log.Fatalf("查询用户失败: %v", err)
	}
}
