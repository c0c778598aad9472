package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/srg/scorelink/internal/config"
	"github.com/srg/scorelink/internal/radio"
	"github.com/srg/scorelink/internal/radio/bluez"
	"github.com/srg/scorelink/internal/radio/goble"
	"github.com/srg/scorelink/internal/radio/rfcomm"
)

// adapterFactory creates the platform radio for cfg and returns a function
// releasing it. This is a variable so that it can be overridden in tests.
var adapterFactory = func(cfg *config.Config, logger *logrus.Logger) (radio.Adapter, func() error, error) {
	dialer := rfcomm.NewDialer(cfg.Radio.RFCOMMChannel, logger)

	switch cfg.Radio.Backend {
	case config.BackendBlueZ:
		a, err := bluez.Connect(cfg.Radio.Adapter, dialer, logger)
		if err != nil {
			return nil, nil, err
		}
		return a, a.Close, nil
	case config.BackendGoBLE:
		a := goble.New(dialer, logger)
		return a, a.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown radio backend %q", cfg.Radio.Backend)
	}
}
