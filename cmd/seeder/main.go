package main

import (
	"fmt"
	"log"

	"github.com/converseapp/converse/internal/config"
	"github.com/converseapp/converse/internal/model"
	"github.com/converseapp/converse/internal/repository"
	"github.com/converseapp/converse/internal/service"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	cfg := config.Load()

	// Force DB logging off to avoid noise
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	log.Println("✅ Connected to Database")

	// Common password for all users
	password := "password123"
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("❌ Failed to hash password: %v", err)
	}

	log.Println("🌱 Seeding 10 users...")

	for i := 1; i <= 10; i++ {
		username := fmt.Sprintf("user%d", i)
		email := fmt.Sprintf("user%d@converse.local", i)

		var existing model.User
		if err := db.Where("email = ?", email).First(&existing).Error; err == nil {
			continue
		}

		user := model.User{
			ID:       uuid.New(),
			Name:     fmt.Sprintf("User Number %d", i),
			Email:    email,
			Password: string(hashedPassword),
			IsOnline: i%3 == 0,
			Avatar:   fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/svg?seed=%s", username),
		}

		if err := db.Create(&user).Error; err != nil {
			log.Printf("❌ Failed to create user %s: %v", username, err)
		} else {
			log.Printf("✅ Created user: %s | Email: %s | Pass: %s", username, email, password)
		}
	}

	seedConversations(db)

	log.Println("🎉 Seeding completed!")
}

// seedConversations creates a demo direct chat and a demo group through
// the service layer so all invariants (direct keys, owner admin rows,
// settings defaults) hold for the seeded data too.
func seedConversations(db *gorm.DB) {
	var users []model.User
	if err := db.Order("email").Limit(4).Find(&users).Error; err != nil || len(users) < 4 {
		return
	}

	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	reactRepo := repository.NewReactionRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)
	userRepo := repository.NewUserRepository(db)
	groupRepo := repository.NewGroupRepository(db)

	chatService := service.NewChatService(convRepo, msgRepo, reactRepo, receiptRepo, userRepo, service.NopBroadcaster{})
	groupService := service.NewGroupService(groupRepo, convRepo, userRepo, service.NopBroadcaster{})

	// Direct chat between the first two users
	conv, created, err := chatService.GetOrCreateDirect(users[0].ID, users[1].ID)
	if err != nil {
		log.Printf("❌ Failed to seed direct chat: %v", err)
	} else if created {
		if _, err := chatService.Send(conv.ID, users[0].ID, model.SendMessageRequest{
			Content: "Hey! 👋",
		}); err != nil {
			log.Printf("❌ Failed to seed direct message: %v", err)
		}
		log.Printf("✅ Created demo direct chat: %s ↔ %s", users[0].Name, users[1].Name)
	}

	// Demo group owned by the first user
	var count int64
	db.Model(&model.Conversation{}).Where("name = ?", "General Chat").Count(&count)
	if count > 0 {
		return
	}

	group, err := groupService.CreateGroup(users[0].ID, model.CreateGroupRequest{
		Name:        "General Chat",
		Description: "Everything goes here",
		Participants: []model.ParticipantRef{
			{UserID: users[1].ID},
			{UserID: users[2].ID},
			{UserID: users[3].ID},
		},
	})
	if err != nil {
		log.Printf("❌ Failed to create demo group: %v", err)
		return
	}

	if _, err := chatService.Send(group.ID, users[0].ID, model.SendMessageRequest{
		Content: "Welcome everybody to Converse! 🚀",
	}); err != nil {
		log.Printf("❌ Failed to seed group message: %v", err)
	}

	log.Println("✅ Created demo group: 'General Chat' with 4 members")
}
