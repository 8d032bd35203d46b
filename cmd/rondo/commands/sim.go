package commands

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rondonetworks/rondo/src/crypto/keys"
	"github.com/rondonetworks/rondo/src/dpos"
	"github.com/rondonetworks/rondo/src/miners"
)

var logger *logrus.Logger

//NewSimCmd returns the command that plays consensus rounds with a set of
//in-process miners
func NewSimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sim",
		Short:   "Play consensus rounds with in-process miners",
		PreRunE: loadConfig,
		RunE:    runSim,
	}
	AddSimFlags(cmd)
	return cmd
}

/*******************************************************************************
* SIM
*******************************************************************************/

func runSim(cmd *cobra.Command, args []string) error {
	n := _config.Miners
	if n < 1 {
		return fmt.Errorf("at least one miner is required")
	}

	privKeys := make([]*ecdsa.PrivateKey, n)
	pubKeys := make([]string, n)
	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		if err != nil {
			return err
		}
		privKeys[i] = key
		pubKeys[i] = keys.PublicKeyHex(&key.PublicKey)
	}
	ms := miners.NewMinerSetFromPubKeys(pubKeys)

	conf := &_config.Rondo

	var store dpos.Store
	if conf.Store {
		s, err := dpos.NewBadgerStore(conf.CacheSize, conf.DatabaseDir)
		if err != nil {
			return err
		}
		store = s
	} else {
		store = dpos.NewInmemStore(conf.CacheSize)
	}
	defer store.Close()

	engine := dpos.NewEngine(conf, store, dpos.Services{}, logger.WithField("prefix", "rondo"))

	genesis := time.Now().UTC()
	if err := engine.Bootstrap(ms, genesis); err != nil {
		return err
	}

	producers := map[string]*dpos.Producer{}
	for _, key := range privKeys {
		p := dpos.NewProducer(key, engine, logger.WithField("prefix", "rondo"))
		producers[p.PubKeyHex()] = p
	}

	target := uint64(_config.Rounds)
	for store.LastRoundNumber() <= target {
		current, err := store.CurrentRound()
		if err != nil {
			return err
		}

		for _, slot := range current.OrderedSlots() {
			now := slot.ExpectedMiningTime
			if err := mine(engine, producers[slot.PubKeyHex], now); err != nil {
				return err
			}
			// one extra tiny block halfway through the slot
			if err := mine(engine, producers[slot.PubKeyHex], now.Add(conf.MiningInterval/2)); err != nil {
				return err
			}
		}

		ebp := current.ExtraBlockProducer()
		if ebp == nil {
			return fmt.Errorf("round %d has no extra block producer", current.Number)
		}
		if err := mine(engine, producers[ebp.PubKeyHex],
			current.ExtraBlockMiningTime(conf.MiningInterval)); err != nil {
			return err
		}
	}

	last, err := store.CurrentRound()
	if err != nil {
		return err
	}

	fmt.Printf("played %d rounds with %d miners: height %d, irreversible height %d (round %d)\n",
		last.Number-1, n, store.CurrentHeight(),
		last.ConfirmedIrreversibleBlockHeight, last.ConfirmedIrreversibleBlockRoundNumber)

	return nil
}

func mine(engine *dpos.Engine, p *dpos.Producer, now time.Time) error {
	extra, op, err := p.Propose(now)
	if err != nil {
		return err
	}
	if extra == nil {
		return nil
	}
	return engine.ProcessBlock(extra, op, now)
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddSimFlags adds flags to the Sim command
func AddSimFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.Rondo.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Rondo.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().Duration("mining-interval", _config.Rondo.MiningInterval, "Length of one miner's time slot")
	cmd.Flags().Duration("term-duration", _config.Rondo.TermDuration, "Length of one term")
	cmd.Flags().Int("cache-size", _config.Rondo.CacheSize, "Number of rounds in the in-memory window")
	cmd.Flags().Bool("store", _config.Rondo.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.Rondo.DatabaseDir, "Database directory")
	cmd.Flags().Int("miners", _config.Miners, "Number of in-process miners")
	cmd.Flags().Int("rounds", _config.Rounds, "Number of rounds to play")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Rondo.SetDataDir(_config.Rondo.DataDir)

	logger = newLogger()
	logger.Level = dpos.LogLevel(_config.Rondo.LogLevel)

	logger.WithFields(logrus.Fields{
		"datadir":         _config.Rondo.DataDir,
		"log":             _config.Rondo.LogLevel,
		"mining-interval": _config.Rondo.MiningInterval,
		"term-duration":   _config.Rondo.TermDuration,
		"cache-size":      _config.Rondo.CacheSize,
		"store":           _config.Rondo.Store,
		"db":              _config.Rondo.DatabaseDir,
		"miners":          _config.Miners,
		"rounds":          _config.Rounds,
	}).Debug("SIM")

	return nil
}

func newLogger() *logrus.Logger {
	logger := logrus.New()

	pathMap := lfshook.PathMap{}

	_, err := os.OpenFile("rondo_info.log", os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Info("Failed to open rondo_info.log file, using default stderr")
	} else {
		pathMap[logrus.InfoLevel] = "rondo_info.log"
	}

	_, err = os.OpenFile("rondo_debug.log", os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Info("Failed to open rondo_debug.log file, using default stderr")
	} else {
		pathMap[logrus.DebugLevel] = "rondo_debug.log"
	}

	logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))

	return logger
}
