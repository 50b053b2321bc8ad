package main

import (
	"log"

	"github.com/healthlink/healthlink-backend/internal/config"
	"github.com/healthlink/healthlink-backend/internal/db"
	"github.com/healthlink/healthlink-backend/internal/httpapi"
	"github.com/healthlink/healthlink-backend/internal/relay"
	"github.com/healthlink/healthlink-backend/internal/store/rabbitmq"
	"github.com/healthlink/healthlink-backend/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	db.Migrate(gdb)

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	rly := relay.NewRedisRelay(rds.Client(), cfg.RelayKey, cfg.RelaySecret)

	rabbit, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit: %v", err)
	}
	defer rabbit.Close()

	r := httpapi.NewRouter(gdb, cfg, rds, rly, rabbit)

	log.Printf("api listening on %s", cfg.ListenAddr)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
