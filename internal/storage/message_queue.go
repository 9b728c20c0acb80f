package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Silencehuliang/spectrometer-gui/pkg/spectrum"
)

// recentListKey 最近光谱的环形备份列表
const (
	recentListKey = "spectrometer:spectra:recent"
	recentListCap = 999
)

// MessageQueue 把采集完成的光谱发布到Redis
type MessageQueue struct {
	client  *redis.Client
	channel string
	log     *logrus.Logger
}

func NewMessageQueue(addr, password, channel string, db int, poolSize int, log *logrus.Logger) (*MessageQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	// 测试连接
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("连接Redis失败: %w", err)
	}

	log.Info("Redis连接成功")

	return &MessageQueue{
		client:  client,
		channel: channel,
		log:     log,
	}, nil
}

// Publish 发布一条完成的光谱
// Pub/Sub 推送实时数据，同时写入长度受限的最近列表供消费方补读
func (mq *MessageQueue) Publish(ctx context.Context, data *spectrum.SpectrumData) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("序列化光谱失败: %w", err)
	}

	if err := mq.client.Publish(ctx, mq.channel, jsonData).Err(); err != nil {
		return fmt.Errorf("发布光谱失败: %w", err)
	}

	if err := mq.client.LPush(ctx, recentListKey, jsonData).Err(); err != nil {
		mq.log.Warnf("保存到最近列表失败: %v", err)
	}
	mq.client.LTrim(ctx, recentListKey, 0, recentListCap)

	return nil
}

// PublishPeak 发布一条峰值检测结果
func (mq *MessageQueue) PublishPeak(ctx context.Context, peak *spectrum.PeakData) error {
	jsonData, err := json.Marshal(peak)
	if err != nil {
		return fmt.Errorf("序列化峰值失败: %w", err)
	}
	if err := mq.client.Publish(ctx, mq.channel+":peaks", jsonData).Err(); err != nil {
		return fmt.Errorf("发布峰值失败: %w", err)
	}
	return nil
}

// Close 关闭连接
func (mq *MessageQueue) Close() error {
	return mq.client.Close()
}
