package common

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	commonconfig "github.com/G-Research/importscheduler/internal/common/config"
	"github.com/G-Research/importscheduler/internal/common/logging"
)

const baseConfigFileName = "config"

// LoadConfig reads <defaultPath>/config.yaml, merges the user supplied files on top of it in order, applies
// IMPORTER_ environment variables and bound command line flags, then unmarshals and validates the result.
// It exits the process on any failure since nothing useful can run without configuration.
func LoadConfig(config interface{}, defaultPath string, overrideConfigs []string) *viper.Viper {
	v, err := loadConfig(config, defaultPath, overrideConfigs)
	if err != nil {
		commonconfig.LogValidationErrors(err)
		log.Error(err)
		os.Exit(-1)
	}
	return v
}

func loadConfig(config interface{}, defaultPath string, overrideConfigs []string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(baseConfigFileName)
	v.AddConfigPath(defaultPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading base config path=%s: %v", defaultPath, err)
	}
	log.Infof("Read base config from %s", v.ConfigFileUsed())

	for _, overrideConfig := range overrideConfigs {
		if strings.TrimSpace(overrideConfig) == "" {
			continue
		}
		v.SetConfigFile(overrideConfig)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config from %s: %v", overrideConfig, err)
		}
		log.Infof("Read config from %s", v.ConfigFileUsed())
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("IMPORTER")
	v.AutomaticEnv()

	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(config, commonconfig.CustomHooks...); err != nil {
		return nil, err
	}
	if err := commonconfig.Validate(config); err != nil {
		return nil, err
	}
	return v, nil
}

func ConfigureLogging() {
	logging.ConfigureLogging()
}

func ConfigureCommandLineLogging() {
	logging.ConfigureCommandLineLogging()
}

// ServeMetrics exposes the default prometheus registry on /metrics and returns a function that stops the server.
func ServeMetrics(port uint16) (shutdown func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Infof("serving metrics on :%d", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.WithStacktrace(log.NewEntry(log.StandardLogger()), err).Error("metrics server failed")
		}
	}()
	return func() {
		if err := server.Close(); err != nil {
			log.WithError(err).Warn("error closing metrics server")
		}
	}
}
