package main

import (
	"chat_relay/internal/config"
	messageRepo "chat_relay/internal/repository/message"
	userRepo "chat_relay/internal/repository/user"
	"chat_relay/internal/service/blob"
	"chat_relay/internal/service/identity"
	redisSvc "chat_relay/internal/service/redis"
	"chat_relay/internal/service/server"
	"chat_relay/internal/utils/log"
	"context"

	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config failed", zap.Error(err))
	}

	mongoDBClient, err := initMongo(cfg.MongoURI)
	if err != nil {
		log.Fatal("connect mongo failed", zap.Error(err))
	}

	db := mongoDBClient.Database(cfg.MongoDB)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	cache := redisSvc.NewRedis(rdb)

	blobs, err := blob.NewStore(cfg.UploadDir)
	if err != nil {
		log.Fatal("init blob store failed", zap.Error(err))
	}

	users := userRepo.NewUserRepo(db)
	messages := messageRepo.NewMessageRepo(db)
	binder := identity.NewBinder([]byte(cfg.JWTSecret), users, cache, cfg.IdentityCacheTTL)

	s := server.NewHttpServer(cfg, binder, messages, blobs)
	go func() {
		log.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := s.Run(); err != nil {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
}

func initMongo(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}
