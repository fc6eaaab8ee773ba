package main

import (
	"errors"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/khscrm/api/internal/config"
	"github.com/khscrm/api/internal/database"
	"github.com/khscrm/api/internal/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func main() {
	// Parse command line flags
	email := flag.String("email", "", "Email for the account")
	password := flag.String("password", "", "Password for the account")
	name := flag.String("name", "", "Display name for the account")
	role := flag.String("role", string(model.RoleOwner), "Role: OWNER or WORKER")
	flag.Parse()

	if *email == "" || *password == "" {
		log.Fatal("Both -email and -password are required")
	}

	userRole := model.Role(strings.ToUpper(*role))
	if !userRole.Valid() {
		log.Fatalf("Invalid role %q, must be OWNER or WORKER", *role)
	}

	// Load .env file if exists
	_ = godotenv.Load()

	cfg := config.Load()

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migration
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	normalizedEmail := strings.ToLower(strings.TrimSpace(*email))

	var existing model.User
	result := db.Where("LOWER(email) = ?", normalizedEmail).First(&existing)
	if result.Error == nil {
		log.Fatalf("User %s already exists (id=%d)", normalizedEmail, existing.ID)
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		log.Fatalf("Failed to look up user: %v", result.Error)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	user := model.User{
		Email:        normalizedEmail,
		PasswordHash: string(hash),
		Name:         *name,
		Role:         userRole,
		Active:       true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := db.Create(&user).Error; err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}

	log.Printf("Created %s account %s (id=%d)", user.Role, user.Email, user.ID)
}
