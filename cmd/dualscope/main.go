package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dualscope/internal/config"
	"dualscope/internal/logger"
	"dualscope/internal/scope"
	"dualscope/internal/seriallines"
	"dualscope/internal/sink"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	configPath   string
	port         string
	sinkAddr     string
	samplingRate int
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "dualscope",
		Short:         "Two-channel differential signal capture instrument",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f)
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&f.port, "port", "", "serial port of the probe (default: autodetect)")
	cmd.Flags().StringVar(&f.sinkAddr, "sink", "", "UDP address windows are published to")
	cmd.Flags().IntVar(&f.samplingRate, "sampling-rate", 0, "sampling rate in Hz")
	return cmd
}

func run(f flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.port != "" {
		cfg.Serial.Port = f.port
	}
	if f.sinkAddr != "" {
		cfg.Sink.Addr = f.sinkAddr
	}
	if f.samplingRate != 0 {
		cfg.Acquisition.SamplingRate = f.samplingRate
	}

	log, err := logger.NewLogger(cfg.Logging.File)
	if err != nil {
		return errors.Wrap(err, "initializing logger")
	}
	defer log.Sync()

	portName := cfg.Serial.Port
	if portName == "" {
		portName, err = seriallines.DetectPort(cfg.Serial.BaudRate)
		if err != nil {
			return errors.Wrap(err, "locating probe")
		}
		log.Info("[main] detected probe port", zap.String("portName", portName))
	}
	lines := seriallines.New(portName, cfg.Serial.BaudRate, log)

	udpSink, err := sink.NewUDP(cfg.Sink.Addr, log)
	if err != nil {
		return err
	}
	defer udpSink.Close()

	channelMode, err := scope.ParseChannelMode(cfg.Acquisition.ChannelMode)
	if err != nil {
		return err
	}

	session, err := scope.NewSession(scope.AcquisitionConfig{
		SamplingRate:       cfg.Acquisition.SamplingRate,
		BufferCapacity:     cfg.Acquisition.BufferCapacity,
		PreTriggerSamples:  cfg.Acquisition.PreTriggerSamples,
		PostTriggerSamples: cfg.Acquisition.PostTriggerSamples,
		StreamInterval:     time.Duration(cfg.Acquisition.StreamIntervalMs) * time.Millisecond,
		Timebase:           cfg.Acquisition.Timebase,
		AmplitudeScale:     cfg.Acquisition.AmplitudeScale,
		ChannelMode:        channelMode,
	}, lines, udpSink, scope.NewMonotonicClock(), log)
	if err != nil {
		return err
	}

	if err := session.Start(); err != nil {
		return err
	}

	if cfg.Trigger.Enabled {
		trigCfg, err := triggerFromConfig(cfg.Trigger)
		if err != nil {
			return err
		}
		if err := session.ConfigureTrigger(trigCfg); err != nil {
			return err
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	// a mid-session fault stops the session on its own; that is not an
	// error at shutdown
	if err := session.Stop(); err != nil && !errors.Is(err, scope.ErrNotAcquiring) {
		return err
	}
	return nil
}

func triggerFromConfig(tc config.TriggerConfig) (scope.TriggerConfig, error) {
	channel, err := scope.ParseChannel(tc.Channel)
	if err != nil {
		return scope.TriggerConfig{}, err
	}
	edge, err := scope.ParseEdge(tc.Edge)
	if err != nil {
		return scope.TriggerConfig{}, err
	}
	return scope.TriggerConfig{
		Enabled: tc.Enabled,
		Channel: channel,
		Edge:    edge,
		Level:   int8(tc.Level),
		Timeout: tc.TimeoutSeconds,
	}, nil
}
