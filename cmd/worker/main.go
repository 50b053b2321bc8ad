package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/healthlink/healthlink-backend/internal/config"
	"github.com/healthlink/healthlink-backend/internal/db"
	"github.com/healthlink/healthlink-backend/internal/email"
	"github.com/healthlink/healthlink-backend/internal/models"
	"github.com/healthlink/healthlink-backend/internal/store/rabbitmq"
	"gorm.io/gorm"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	smtp := email.SMTPConfig{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(cfg.RabbitQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.RabbitQueue + ".dlq",
	})
	if err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	concurrency := workerConcurrency()

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m rabbitmq.NotificationMessage
				if err := json.Unmarshal(d.Body, &m); err != nil || m.NotificationID == "" {
					log.Printf("worker=%d bad message: %v", workerID, err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := handleNotification(ctx, gdb, smtp, m.NotificationID); err != nil {
					log.Printf("worker=%d notification %s failed cost=%s err=%v", workerID, m.NotificationID, time.Since(start), err)
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					log.Printf("worker=%d ack failed notification=%s err=%v", workerID, m.NotificationID, err)
				}
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

func handleNotification(ctx context.Context, gdb *gorm.DB, smtp email.SMTPConfig, id string) error {
	// queued -> running; a redelivery of an already-delivered notification is
	// skipped instead of emailed twice.
	res := gdb.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND status = ?", id, models.NotificationQueued).
		Update("status", models.NotificationRunning)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n models.Notification
		if err := gdb.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("notification %s not found, dropping", id)
				return nil
			}
			return err
		}
		if n.Status == models.NotificationSucceeded {
			return nil
		}
		// failed or stuck running: retry the send below
	}

	var n models.Notification
	if err := gdb.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return err
	}

	if err := email.SendText(smtp, n.Email, n.Subject, n.Body); err != nil {
		msg := err.Error()
		_ = gdb.WithContext(ctx).Model(&models.Notification{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status": models.NotificationFailed,
				"error":  msg,
			}).Error
		return err
	}

	return gdb.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status": models.NotificationSucceeded,
			"error":  nil,
		}).Error
}
