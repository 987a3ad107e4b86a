package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/sahilsaleem2907/flowly-task/backend/internal/cache"
	"github.com/sahilsaleem2907/flowly-task/backend/internal/oplog"
	"github.com/sahilsaleem2907/flowly-task/backend/internal/relay"
	"github.com/sahilsaleem2907/flowly-task/backend/internal/replication"
	"github.com/sahilsaleem2907/flowly-task/backend/internal/store"
	"github.com/sahilsaleem2907/flowly-task/backend/internal/ws"
)

type RelayConfig struct {
	Running struct {
		Port int `mapstructure:"Port"`
	} `mapstructure:"Running"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"Mysql"`
	Redis struct {
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"Redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"Kafka"`
}

func initConfig() (*RelayConfig, error) {
	cfg := &RelayConfig{}
	v := viper.New()
	v.SetConfigName("relayConfig")
	v.SetConfigType("yaml")
	// 兼容从项目根目录或 backend 目录启动
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	cfg, err := initConfig()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	log.Printf("config: %+v", cfg)

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
	})
	if err = rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	// MySQL 快照存储可选：没配 DSN 就不落快照
	var snapshots *store.SnapshotStore
	if cfg.Mysql.DSN != "" {
		db, err := store.InitMySQL(cfg.Mysql.DSN)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		snapshots = store.NewSnapshotStore(db)
	} else {
		log.Printf("mysql dsn not set, snapshots disabled")
	}

	// Kafka 扇出可选：没配 broker 就只走 Redis 日志
	var dispatcher *oplog.KafkaDispatcher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaCfg := sarama.NewConfig()
		// SyncProducer 必须开启 Return.Successes
		kafkaCfg.Producer.Return.Successes = true
		kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
		producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
		if err != nil {
			log.Fatalf("Failed to connect kafka: %v", err)
		}
		defer producer.Close()

		dispatcher = oplog.NewKafkaDispatcher(
			producer,
			cfg.Kafka.Topic,
			oplog.NewSemaphore(100),
			oplog.KafkaDispatcherOptions{
				QueueSize:   10_000,
				Workers:     4,
				MaxRetry:    3,
				BaseBackoff: 50 * time.Millisecond,
				MaxBackoff:  1 * time.Second,
			},
		)
	} else {
		log.Printf("kafka brokers not set, fan-out disabled")
	}

	presence := cache.NewRedisPresence(rdb)
	hub := ws.NewHub(presence)
	svc := relay.NewService(func(docID string) replication.OpLog {
		return oplog.NewRedisLog(rdb, docID)
	}, snapshots, dispatcher)

	submitSem := oplog.NewSemaphore(100)
	manager := ws.NewManager(hub, svc, submitSem)

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	collab := r.Group("/collab")
	collab.GET("/ws", manager.WebSocketConnect)
	collab.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "ok",
		})
	})

	port := cfg.Running.Port
	_ = r.Run(fmt.Sprintf(":%d", port))
}
