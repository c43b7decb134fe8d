// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"policyqa-go/internal/config"
	"policyqa-go/pkg/log"
	"policyqa-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// MaxAttempts 是一个任务被放弃前的最大处理次数。
const MaxAttempts = 3

// defaultRetryDelay 是第一次重试前的等待时间，之后按尝试次数线性增长。
const defaultRetryDelay = 2 * time.Second

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	// Process 返回非 nil 表示任务值得重试。
	Process(ctx context.Context, task tasks.IngestTask) error
	// Abandon 在重试次数用尽后调用。
	Abandon(ctx context.Context, task tasks.IngestTask, cause error)
}

// Producer 发送入库任务。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg.Brokers)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// ProduceIngestTask 发送一个入库任务到 Kafka，以 user id 作为 key 保证同一用户的任务有序。
func (p *Producer) ProduceIngestTask(ctx context.Context, task tasks.IngestTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.UserID),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// AttemptCounter 记录任务的失败次数。
type AttemptCounter interface {
	Incr(ctx context.Context, jobID string) (int64, error)
	Reset(ctx context.Context, jobID string) error
}

// RedisAttempts 使用 Redis 计数失败次数，计数 24 小时后过期。
type RedisAttempts struct {
	client *redis.Client
}

// NewRedisAttempts 创建基于 Redis 的失败计数器。
func NewRedisAttempts(client *redis.Client) *RedisAttempts {
	return &RedisAttempts{client: client}
}

func attemptsKey(jobID string) string {
	return fmt.Sprintf("kafka:attempts:%s", jobID)
}

func (a *RedisAttempts) Incr(ctx context.Context, jobID string) (int64, error) {
	key := attemptsKey(jobID)
	n, err := a.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = a.client.Expire(ctx, key, 24*time.Hour).Err()
	return n, nil
}

func (a *RedisAttempts) Reset(ctx context.Context, jobID string) error {
	return a.client.Del(ctx, attemptsKey(jobID)).Err()
}

// messageReader 是 *kafka.Reader 中消费者用到的部分。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer 消费入库任务。kafka-go 的消费组 Reader 不会重新投递未提交的消息，
// 所以失败的任务在进程内重试，最多 MaxAttempts 次后才提交 offset。
// 失败次数同时记录在 AttemptCounter 中，进程重启后重新投递的任务会继续累计。
type Consumer struct {
	reader     messageReader
	processor  TaskProcessor
	attempts   AttemptCounter
	retryDelay time.Duration
}

// NewConsumer 创建一个 Kafka 消费者。
func NewConsumer(cfg config.KafkaConfig, processor TaskProcessor, attempts AttemptCounter) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: r, processor: processor, attempts: attempts, retryDelay: defaultRetryDelay}
}

// Run 阻塞消费，直到 ctx 被取消或读取失败。
func (c *Consumer) Run(ctx context.Context) error {
	log.Infof("Kafka 消费者已启动")
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			log.Error("从 Kafka 读取消息失败", err)
			return err
		}
		c.handle(ctx, m)
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	log.Infof("收到 Kafka 消息: offset %d", m.Offset)

	var task tasks.IngestTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		// 消息格式错误，直接提交，避免阻塞队列
		c.commit(ctx, m)
		return
	}

	log.Infof("开始处理入库任务: JobID=%s, UserID=%s, 文件数=%d", task.JobID, task.UserID, len(task.FileNames))
	for tries := 1; ; tries++ {
		attempt := c.nextAttempt(ctx, task.JobID, tries)
		err := c.processor.Process(ctx, task)
		if err == nil {
			log.Infof("入库任务处理成功: JobID=%s, 第 %d 次尝试", task.JobID, attempt)
			c.resetAttempts(ctx, task.JobID)
			c.commit(ctx, m)
			return
		}
		if ctx.Err() != nil {
			// 正在退出：不提交，重启后从已提交的 offset 继续
			log.Warnf("消费者退出, 入库任务未完成: JobID=%s", task.JobID)
			return
		}
		if attempt >= MaxAttempts {
			log.Errorf("入库任务多次失败(>=%d)，提交 offset 终止重试: JobID=%s, Error: %v", MaxAttempts, task.JobID, err)
			c.processor.Abandon(ctx, task, err)
			c.resetAttempts(ctx, task.JobID)
			c.commit(ctx, m)
			return
		}
		log.Warnf("处理入库任务失败, 准备重试: JobID=%s, 第 %d 次尝试, Error: %v", task.JobID, attempt, err)
		if !c.wait(ctx, time.Duration(attempt)*c.retryDelay) {
			return
		}
	}
}

// nextAttempt 返回本次尝试的序号：取 Redis 累计值与进程内计数中较大的一个。
// Redis 不可用时退化为进程内计数。
func (c *Consumer) nextAttempt(ctx context.Context, jobID string, tries int) int {
	n, err := c.attempts.Incr(ctx, jobID)
	if err != nil {
		log.Warnf("记录失败次数失败, 使用进程内计数: JobID=%s, err: %v", jobID, err)
		return tries
	}
	if int(n) > tries {
		return int(n)
	}
	return tries
}

func (c *Consumer) resetAttempts(ctx context.Context, jobID string) {
	if err := c.attempts.Reset(ctx, jobID); err != nil {
		log.Warnf("清除失败次数失败: JobID=%s, err: %v", jobID, err)
	}
}

// wait 在 ctx 被取消时返回 false。
func (c *Consumer) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}

// brokers 解析逗号分隔的 broker 列表。
func brokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
