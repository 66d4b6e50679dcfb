// Program gominer is the coordination-core CLI: it loads pool
// configuration, dials the active pool's Stratum or getwork/long-poll
// client, and runs the worker/I-O-actor roster until shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/coreminer/gominer/algo"
	"github.com/coreminer/gominer/config"
	"github.com/coreminer/gominer/pool"
	"github.com/coreminer/gominer/scheduler"
	"github.com/coreminer/gominer/supervisor"
	"github.com/coreminer/gominer/work"
	"github.com/coreminer/gominer/worklog"
)

const version = "0.1.0"

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "gominer",
	Short: "Multi-algorithm proof-of-work mining coordination core",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func selectZapLevel(loglevel string) zapcore.Level {
	switch loglevel {
	case "debug":
		return zap.DebugLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func newLogger(loglevel string) *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.Lock(os.Stdout), selectZapLevel(loglevel))
	return zap.New(core).Sugar()
}

func run(cmd *cobra.Command) error {
	cfgPath, _ := cmd.Flags().GetString("cfg")
	cfg, err := config.Load(v, cfgPath)
	if err != nil {
		return err
	}

	log := newLogger(cfg.LogLevel)
	defer log.Sync()

	if len(cfg.Pools) == 0 {
		return fmt.Errorf("gominer: no pools configured")
	}

	registry := pool.NewRegistry(cfg.PoolFailover)
	for _, p := range cfg.Pools {
		cleanURL, parsedUser, parsedPass, t := pool.ParseURL(p.URL)
		user, pass := parsedUser, parsedPass
		if p.User != "" {
			user, pass = p.User, p.Pass
		}
		entry := &pool.Entry{
			URL:        cleanURL,
			DisplayURL: cleanURL,
			User:       user,
			Pass:       pass,
			Algo:       p.Algo,
			Type:       t,
			Status:     pool.StatusValid | pool.StatusDefined,
			MaxDiff:    p.MaxDiff,
			MaxRate:    p.MaxRate,
		}
		if p.ScanTime > 0 {
			entry.ScanTime = time.Duration(p.ScanTime) * time.Second
		}
		if p.TimeLimit > 0 {
			entry.TimeLimit = time.Duration(p.TimeLimit) * time.Second
		}
		if _, err := registry.Add(entry); err != nil {
			return fmt.Errorf("gominer: %w", err)
		}
	}

	if cfg.LogLevel == "debug" {
		log.Debugw("resolved pool table", "pools", spew.Sdump(cfg.Pools))
	}

	activeIdx := registry.Current()
	active := registry.Get(activeIdx)
	fam, ok := algo.Lookup(cfg.Pools[activeIdx].Algo)
	if !ok {
		return fmt.Errorf("gominer: unknown algorithm %q", cfg.Pools[activeIdx].Algo)
	}

	scanTime := active.ScanTime
	if scanTime <= 0 {
		scanTime = 30 * time.Second
	}

	cw := work.NewCurrentWork(cfg.Workers)
	hashlog := worklog.NewHashLog()

	supCfg := supervisor.Config{
		WorkerCount:  cfg.Workers,
		Algo:         fam,
		ScanTime:     scanTime,
		TimeLimit:    active.TimeLimit,
		HaveStratum:  active.Type == pool.Stratum,
		MultiplePool: registry.Len() > 1,
		Gates:        scheduler.Gates{MaxTemp: cfg.MaxTemp, MaxDiff: active.MaxDiff, MaxRate: active.MaxRate},
		Retries:      cfg.Retries,
		FailPause:    cfg.FailPause,
		ProxyURL:     cfg.Proxy,
		UserAgent:    cfg.UserAgent,
		Vote:         cfg.Vote,
	}

	ctx := context.Background()

	// The session driver (Supervisor.runUpstreamSession) owns dialing,
	// reconnecting, and pool failover from here; it installs its own
	// Requester once connected, so none is handed in at construction.
	switcher := &pool.Switcher{Registry: registry, Work: cw}
	sup := supervisor.New(supCfg, nil, cw, hashlog, registry, switcher, log)

	sup.Run(ctx)
	return nil
}

func init() {
	fs := pflag.NewFlagSet("gominer", pflag.ExitOnError)
	if err := config.BindFlags(fs, v); err != nil {
		panic(err)
	}
	rootCmd.Flags().AddFlagSet(fs)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
