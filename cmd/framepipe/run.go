/*
 * Copyright 2024 The Framepipe Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/framepipe/framepipe/api/types"
	"github.com/framepipe/framepipe/bridge"
	"github.com/framepipe/framepipe/config"
	"github.com/framepipe/framepipe/engine"
	"github.com/framepipe/framepipe/eval"
	"github.com/framepipe/framepipe/mapping"
	"github.com/framepipe/framepipe/metric"
	"github.com/framepipe/framepipe/mqtt"
	"github.com/framepipe/framepipe/replay"
	"github.com/framepipe/framepipe/sink"
	"github.com/framepipe/framepipe/transport"
	"github.com/framepipe/framepipe/utils/pool"
	"github.com/prometheus/client_golang/prometheus"
)

// runPipeline wires the component graph from the configuration file and
// blocks until interrupted.
func runPipeline(configPath string) error {
	appCfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	var opts []types.Option
	if appCfg.Engine.ScriptTimeoutMs > 0 {
		opts = append(opts, types.WithScriptMaxExecutionTime(
			time.Duration(appCfg.Engine.ScriptTimeoutMs)*time.Millisecond))
	}
	if appCfg.Engine.MaxWorkers > 0 {
		wp := &pool.WorkerPool{MaxWorkersCount: appCfg.Engine.MaxWorkers}
		wp.Start()
		opts = append(opts, types.WithPool(wp))
	}
	cfg := types.NewConfig(opts...)
	logger := cfg.Logger

	store := mapping.NewStore(logger)
	if appCfg.Template.Path != "" {
		if err := store.Load(appCfg.Template.Path); err != nil {
			// fail-closed: templated frames drop until a valid template loads
			logger.Printf("%s", err)
		} else if appCfg.Template.Watch {
			if err := store.Watch(); err != nil {
				logger.Printf("template watch: %s", err)
			}
		}
	}
	defer store.Close()

	factory, err := eval.NewFactory(appCfg.Engine.Evaluator, cfg)
	if err != nil {
		return err
	}

	mode, err := types.ParseOperationMode(appCfg.Engine.Mode)
	if err != nil {
		return err
	}
	threading, err := types.ParseThreadingMode(appCfg.Engine.Threading)
	if err != nil {
		return err
	}

	metrics := metric.New(prometheus.DefaultRegisterer)

	var engineOpts []engine.Option
	engineOpts = append(engineOpts, engine.WithMetrics(metrics))

	var player *replay.Player
	if appCfg.Replay != nil {
		player = replay.NewPlayer(*appCfg.Replay, logger)
		engineOpts = append(engineOpts, engine.WithReplaySource(player))
	}

	var source *transport.NetSource
	if appCfg.Transport != nil {
		source = transport.NewNetSource(*appCfg.Transport, logger)
		engineOpts = append(engineOpts, engine.WithSeparator(source.Separator))
	}

	gen := engine.New(cfg, store, factory, engineOpts...)
	gen.SetOperationMode(mode)
	gen.SetThreadingMode(threading)

	if source != nil {
		source.OnFrame(gen.OnFrame)
		source.OnStateChange(func(bool) { gen.Reset() })
		gen.AddSource(source)
		if err := source.Start(); err != nil {
			return err
		}
		defer source.Close()
	}

	if player != nil {
		player.OnFrame(gen.OnReplayFrame)
		player.OnStateChange(func(bool) { gen.Reset() })
		if err := player.StartSchedule(); err != nil {
			return err
		}
		defer player.Stop()
	}

	if appCfg.Mqtt != nil {
		client, err := mqtt.NewClient(context.Background(), *appCfg.Mqtt, logger)
		if err != nil {
			return err
		}
		defer client.Close()
		if appCfg.Mqtt.Mode == mqtt.ModeSubscriber {
			if err := client.Subscribe(gen.OnFrame); err != nil {
				return err
			}
			gen.AddSource(client)
		} else {
			gen.OnEnvelope(func(env types.Envelope) {
				if err := client.PublishEnvelope(env); err != nil {
					logger.Printf("mqtt publish: %s", err)
				}
			})
		}
	}

	if appCfg.Database != nil {
		archive, err := sink.Open(*appCfg.Database, logger)
		if err != nil {
			return err
		}
		defer archive.Close()
		gen.OnEnvelope(func(env types.Envelope) {
			if err := archive.Store(env); err != nil {
				logger.Printf("db sink: %s", err)
			}
		})
	}

	if appCfg.Rest != nil {
		hub := bridge.NewWSHub(logger)
		gen.OnEnvelope(hub.Broadcast)
		rest := bridge.NewRestServer(appCfg.Rest.Addr, gen, hub, logger)
		if player != nil {
			rest.SetReplay(player)
		}
		rest.Start()
		defer rest.Close()
		defer hub.Close()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Printf("shutting down")
	if cfg.Pool != nil {
		cfg.Pool.Release()
	}
	return nil
}
