// standalone bridge: consumes intercepted responses from kafka or rabbitmq,
// publishes composited tiles back and serves the /overlay API, for proxies
// started with BRIDGE_EMBEDDED=false
package main

import (
	"github.com/ds124wfegd/tile-overlay/config"
	"github.com/ds124wfegd/tile-overlay/internal/appServer"
	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(new(logrus.JSONFormatter))
	if level, err := logrus.ParseLevel(config.GetEnv("LOG_LEVEL", "info")); err == nil {
		logrus.SetLevel(level)
	}

	viperInstance, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Cannot load config. Error: {%s}", err.Error())
	}

	cfg, err := config.ParseConfig(viperInstance)
	if err != nil {
		logrus.Fatalf("Cannot parse config. Error: {%s}", err.Error())
	}

	appServer.RunBridge(cfg)
}
