package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/models"
	"brand-deck-platform/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Seeds the first superadmin so the platform can be bootstrapped. Safe to
// run repeatedly; it exits early when a superadmin already exists.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	client, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client.Disconnect(ctx)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	usersCollection := client.Database(cfg.DBName).Collection("users")

	var existing models.User
	err = usersCollection.FindOne(ctx, bson.M{"role": "superadmin"}).Decode(&existing)
	if err == nil {
		fmt.Println("✅ Superadmin user already exists!")
		fmt.Printf("   Username: %s\n", existing.Username)
		fmt.Printf("   Email: %s\n", existing.Email)
		os.Exit(0)
	}

	username := os.Getenv("SUPERADMIN_USERNAME")
	if username == "" {
		username = "superadmin"
	}

	password := os.Getenv("SUPERADMIN_PASSWORD")
	if password == "" {
		password = "SuperAdmin123!"
		fmt.Println("⚠️  WARNING: Using default password. Set SUPERADMIN_PASSWORD environment variable!")
	}

	email := os.Getenv("SUPERADMIN_EMAIL")
	if email == "" {
		email = "superadmin@example.com"
	}

	hashedPassword, err := utils.HashPassword(password, cfg.BcryptCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	now := time.Now()
	superadmin := models.User{
		Username:     username,
		Name:         "Super Administrator",
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         "superadmin",
		BrandID:      nil, // platform operators carry no brand
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	result, err := usersCollection.InsertOne(ctx, superadmin)
	if err != nil {
		log.Fatalf("Failed to create superadmin user: %v", err)
	}

	fmt.Printf("✅ Superadmin user created successfully!\n")
	fmt.Printf("   Username: %s\n", username)
	fmt.Printf("   Email: %s\n", email)
	fmt.Printf("   User ID: %s\n", result.InsertedID.(primitive.ObjectID).Hex())
	fmt.Printf("\n⚠️  IMPORTANT: Change the password after first login!\n")
	fmt.Printf("\n📝 Next steps:\n")
	fmt.Printf("   1. Login at POST /api/auth/login\n")
	fmt.Printf("   2. Use the access token to create brands and members\n")
}
