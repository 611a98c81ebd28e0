package data

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/iWorld-y/poll_insight/internal/conf"
)

// Data 持有数据库连接池，是服务内唯一的长生命周期共享资源
type Data struct {
	db *sqlx.DB
}

func NewData(c *conf.Data, logger log.Logger) (*Data, func(), error) {
	cfg := c.Database
	sslMode := cfg.SslMode
	if sslMode == "" {
		sslMode = "require"
	}
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, sslMode)

	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cleanup := func() {
		log.NewHelper(logger).Info("closing the data resources")
		db.Close()
	}
	return &Data{db: db}, cleanup, nil
}
