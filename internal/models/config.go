package models

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type CloudStorage struct {
	Provider   string `mapstructure:"provider"`
	BucketName string `mapstructure:"bucket_name"`
	Region     string `mapstructure:"region"`
}

type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`
	Gemeente   string `mapstructure:"gemeente"`
	ShapeDir   string `mapstructure:"shape_dir"`

	MeetjestadBaseURL string        `mapstructure:"meetjestad_base_url"`
	MeetjestadWindow  time.Duration `mapstructure:"meetjestad_window"`
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`
	RefreshEnabled    bool          `mapstructure:"refresh_enabled"`

	KafkaEnabled    bool   `mapstructure:"kafka_enabled"`
	KafkaBrokerList string `mapstructure:"kafka_broker_list"`
	KafkaTopic      string `mapstructure:"kafka_topic"`

	DatabaseURL string `mapstructure:"database_url"`

	OutputFolder      string       `mapstructure:"output_folder"`
	OutputDestination string       `mapstructure:"output_destination"`
	CloudStorage      CloudStorage `mapstructure:"cloud_storage"`

	DemoMode    bool `mapstructure:"demo_mode"`
	DemoSensors int  `mapstructure:"demo_sensors"`
	Seed        int  `mapstructure:"seed"`

	PreviewRows   int `mapstructure:"preview_rows"`
	MaxOptionRows int `mapstructure:"max_option_rows"`
}

// LoadConfig initializes and reads the configuration using Viper
func LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Default config location
		viper.AddConfigPath("examples")
		viper.SetConfigName("config")
		viper.SetConfigType("json")
	}

	viper.AutomaticEnv() // Read in environment variables that match

	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("gemeente", "Tilburg")
	viper.SetDefault("shape_dir", "datasets/shape_data")
	viper.SetDefault("meetjestad_base_url", "https://meetjestad.net/data")
	viper.SetDefault("meetjestad_window", "1h")
	viper.SetDefault("refresh_interval", "15m")
	viper.SetDefault("refresh_enabled", true)
	viper.SetDefault("kafka_topic", "sensor-readings")
	viper.SetDefault("output_folder", "output")
	viper.SetDefault("output_destination", "local")
	viper.SetDefault("preview_rows", 10)
	viper.SetDefault("max_option_rows", 50)
	viper.SetDefault("demo_sensors", 25)
	viper.SetDefault("seed", 42)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	decoderConfigOption := viper.DecoderConfigOption(func(config *mapstructure.DecoderConfig) {
		config.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			config.DecodeHook,
			mapstructure.StringToTimeDurationHookFunc(),
		)
	})
	if err := viper.Unmarshal(&config, decoderConfigOption); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}

	return &config, nil
}
