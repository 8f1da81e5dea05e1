package main

import (
	"flag"
	"os"

	"github.com/23skdu/smsmodel/internal/config"
	"github.com/23skdu/smsmodel/internal/demo"
	"github.com/23skdu/smsmodel/internal/logger"
	"github.com/23skdu/smsmodel/internal/metrics"
)

func main() {
	cfg := config.Default()

	flag.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "Output path for the TFLite model")
	flag.StringVar(&cfg.VocabPath, "vocab", cfg.VocabPath, "Output path for the vocabulary file")
	flag.IntVar(&cfg.VocabSize, "vocab-size", cfg.VocabSize, "Vocabulary size and embedding rows")
	flag.IntVar(&cfg.MaxLength, "max-length", cfg.MaxLength, "Token ids per input row")
	flag.BoolVar(&cfg.Float16Weights, "fp16", cfg.Float16Weights, "Store weights as float16")
	flag.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Weight init seed (0 = random)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: console or json")
	flag.StringVar(&cfg.MetricsTextfile, "metrics-textfile", cfg.MetricsTextfile, "Write Prometheus metrics to this file on exit")
	flag.Parse()

	logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := demo.Run(cfg, os.Stdout); err != nil {
		logger.Log.Error("model generation failed", err)
		os.Exit(1)
	}

	if cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
			logger.Log.Warn("failed to write metrics", "path", cfg.MetricsTextfile, "error", err.Error())
		}
	}
}
