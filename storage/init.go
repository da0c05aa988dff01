package storage

import (
	"SkinCoach/storage/database"
	"SkinCoach/storage/mq"
	"SkinCoach/storage/redis"
)

// Options 各进程只初始化自己用到的存储
type Options struct {
	Database bool
	Redis    bool
	MQ       bool
}

// Init 统一 init storage 层
func Init(opts Options) error {
	if opts.Database {
		if err := database.Init(); err != nil {
			return err
		}
	}

	if opts.Redis {
		if err := redis.Init(); err != nil {
			return err
		}
	}

	if opts.MQ {
		if err := mq.Init(); err != nil {
			return err
		}
	}

	return nil
}
