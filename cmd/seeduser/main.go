// Command seeduser creates a user account directly in the database,
// including the first admin.
package main

import (
	"flag"
	"log"
	"strings"

	"medstock-backend/internal/auth"
	"medstock-backend/internal/clock"
	"medstock-backend/internal/config"
	"medstock-backend/internal/database"
	"medstock-backend/internal/logger"
	"medstock-backend/internal/models"
)

func main() {
	name := flag.String("name", "", "display name recorded in audit logs")
	email := flag.String("email", "", "login email")
	password := flag.String("password", "", "initial password (at least 8 characters)")
	role := flag.String("role", string(models.RoleAdmin), "admin or staff")
	flag.Parse()

	if strings.TrimSpace(*name) == "" || strings.TrimSpace(*email) == "" {
		log.Fatal("[FATAL] -name and -email are required")
	}
	if len(*password) < 8 {
		log.Fatal("[FATAL] -password must be at least 8 characters")
	}
	r := models.UserRole(*role)
	if r != models.RoleAdmin && r != models.RoleStaff {
		log.Fatalf("[FATAL] -role must be admin or staff, got %q", *role)
	}

	cfg := config.Load()
	zlog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("[FATAL] logger: %v", err)
	}
	defer zlog.Sync()

	if err := database.Init(cfg, clock.System{}, zlog); err != nil {
		zlog.Fatal("Database init failed", "error", err)
	}

	var count int64
	normalized := strings.TrimSpace(strings.ToLower(*email))
	database.DB.Model(&models.User{}).Where("email = ?", normalized).Count(&count)
	if count > 0 {
		zlog.Fatal("A user with this email already exists", "email", normalized)
	}

	hash, err := auth.HashPassword(*password)
	if err != nil {
		zlog.Fatal("Password could not be hashed", "error", err)
	}

	user := models.User{
		Name:         strings.TrimSpace(*name),
		Email:        normalized,
		PasswordHash: hash,
		Role:         r,
	}
	if err := database.DB.Create(&user).Error; err != nil {
		zlog.Fatal("User could not be created", "error", err)
	}
	zlog.Info("User created", "id", user.ID, "email", user.Email, "role", user.Role)
}
