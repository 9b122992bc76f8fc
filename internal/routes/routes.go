package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kshikongo/chat-app/internal/config"
	"github.com/kshikongo/chat-app/internal/handlers"
	"github.com/kshikongo/chat-app/internal/middleware"
	"github.com/kshikongo/chat-app/internal/repository"
	"github.com/kshikongo/chat-app/internal/services"
	chatws "github.com/kshikongo/chat-app/internal/websocket"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) {
	userRepo := repository.NewUserRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	var storageService services.StorageService
	if cfg.SupabaseURL != "" && cfg.SupabaseBucket != "" && cfg.SupabaseServiceKey != "" {
		storageService = services.NewSupabaseStorageService(cfg.SupabaseURL, cfg.SupabaseBucket, cfg.SupabaseServiceKey)
	}

	hub := chatws.NewHub()
	go hub.Run()

	chatService := services.NewChatService(conversationRepo, userRepo)
	messageService := services.NewMessageService(db, conversationRepo, groupRepo, messageRepo)
	groupService := services.NewGroupService(db, groupRepo, userRepo)
	profileService := services.NewProfileService(userRepo)

	authHandler := handlers.NewAuthHandler(userRepo, cfg.JWTSecret)
	userHandler := handlers.NewUserHandler(profileService)
	chatHandler := handlers.NewChatHandler(chatService, messageService, groupService, hub, cfg.JWTSecret)
	groupHandler := handlers.NewGroupHandler(groupService, chatHandler, hub)
	messageHandler := handlers.NewMessageHandler(messageService, storageService, hub)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	users := authProtected.Group("/users")
	users.Get("", userHandler.ListUsers)
	users.Put("/profile", userHandler.UpdateProfile)
	users.Put("/email", userHandler.ChangeEmail)
	users.Put("/password", userHandler.ChangePassword)
	users.Get("/:id", userHandler.GetUser)
	users.Delete("/:id", middleware.AdminRequired(), userHandler.DeleteUser)

	conversations := authProtected.Group("/conversations")
	conversations.Get("", chatHandler.ListConversations)
	conversations.Post("", chatHandler.CreateConversation)
	conversations.Delete("/:id", chatHandler.DeleteConversation)
	conversations.Get("/:id/messages", chatHandler.GetMessages)
	conversations.Post("/:id/messages", chatHandler.SendMessage)
	conversations.Post("/:id/read", chatHandler.MarkRead)

	groups := authProtected.Group("/groups")
	groups.Get("", groupHandler.ListGroups)
	groups.Post("", groupHandler.CreateGroup)
	groups.Get("/:id", groupHandler.GetGroup)
	groups.Post("/:id/members", groupHandler.AddMembers)
	groups.Delete("/:id/members/:userId", groupHandler.RemoveMember)
	groups.Post("/:id/admins/:userId", groupHandler.Promote)
	groups.Delete("/:id/admins/:userId", groupHandler.Demote)
	groups.Post("/:id/leave", groupHandler.Leave)
	groups.Get("/:id/messages", groupHandler.GetMessages)
	groups.Post("/:id/messages", groupHandler.SendMessage)
	groups.Post("/:id/read", groupHandler.MarkRead)

	messages := authProtected.Group("/messages")
	messages.Put("/:id", messageHandler.EditMessage)
	messages.Delete("/:id", messageHandler.DeleteMessage)

	authProtected.Post("/uploads/:class", messageHandler.UploadAttachment)

	api.Use("/v1/ws", chatHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(chatHandler.HandleWebSocket))
}
