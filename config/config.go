package config

import (
	"os"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Token string `toml:"token"`
	Host  string `toml:"host"`
	Port  string `toml:"port"`

	Variant string `toml:"variant"`
	Device  string `toml:"device"`

	GeneralThreshold   float32 `toml:"general_threshold"`
	CharacterThreshold float32 `toml:"character_threshold"`
	RatingThreshold    float32 `toml:"rating_threshold"`
	MCut               bool    `toml:"mcut"`
	SortByScore        bool    `toml:"sort_by_score"`

	CacheDir    string `toml:"cache_dir"`
	HubEndpoint string `toml:"hub_endpoint"`
	Libonnx     string `toml:"libonnx"`
}

var (
	cfg = Config{
		Token:              "",
		Host:               "0.0.0.0",
		Port:               "8000",
		Variant:            "swin-v2",
		Device:             "cpu",
		GeneralThreshold:   0.35,
		CharacterThreshold: 0.85,
		RatingThreshold:    0,
		SortByScore:        true,
		CacheDir:           "models",
	}
	loadOnce sync.Once
)

func C() Config {
	loadOnce.Do(func() {
		if _, err := os.Stat("config.toml"); err == nil {
			data, err := os.ReadFile("config.toml")
			if err != nil {
				panic(err)
			}
			if err := toml.Unmarshal(data, &cfg); err != nil {
				panic(err)
			}
		}
	})
	return cfg
}
