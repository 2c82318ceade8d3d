package config

import (
	"time"

	"github.com/spf13/viper"
)

type StoreConfig interface {
	GetTicketsBaseURL() string
	GetDefaultPageSize() int
	GetFetchTimeout() time.Duration
}

type Store struct {
	v *viper.Viper
}

var _ StoreConfig = Store{}

func (s Store) GetTicketsBaseURL() string {
	return s.v.GetString("tickets.base_url")
}

func (s Store) GetDefaultPageSize() int {
	size := s.v.GetInt("tickets.page_size")
	if size < 1 {
		return 10
	}
	return size
}

func (s Store) GetFetchTimeout() time.Duration {
	return durationOr(s.v, "tickets.timeout", 15*time.Second)
}
