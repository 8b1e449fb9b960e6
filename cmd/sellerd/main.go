package main

import (
	"io/ioutil"
	"net"
	_ "net/http/pprof"
	"os"
	"path/filepath"

	golog "github.com/ipfs/go-log/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/govmarket/market-core/cmd/common"
	"github.com/govmarket/market-core/cmd/sellerd/negotiator"
	"github.com/govmarket/market-core/cmd/sellerd/service"
	"github.com/govmarket/market-core/policyeval"
)

var (
	daemonName        = "sellerd"
	defaultConfigPath = filepath.Join(os.Getenv("HOME"), "."+daemonName)
	log               = golog.Logger(daemonName)
	v                 = viper.New()
)

func init() {
	flags := []common.Flag{
		{Name: "listen-addr", DefValue: ":8600", Description: "Message listen address"},
		{Name: "policy", DefValue: "", Description: "Seller policy text"},
		{Name: "policy-file", DefValue: "", Description: "File holding the seller policy text"},
		{Name: "auction-duration", DefValue: negotiator.DefaultAuctionDuration, Description: "Competing-offer auction duration"},
		{Name: "evaluator-endpoint", DefValue: "", Description: "OpenAI-compatible evaluator endpoint; empty selects the rule evaluator"},
		{Name: "evaluator-model", DefValue: "gpt-4o-mini", Description: "Evaluator model name"},
		{Name: "evaluator-api-key", DefValue: "", Description: "Evaluator API key"},
		{Name: "floor-price", DefValue: "1", Description: "Rule evaluator floor price"},
		{Name: "asking-price", DefValue: "10", Description: "Rule evaluator asking price"},
		{Name: "metrics-addr", DefValue: ":9090", Description: "Prometheus listen address"},
		{Name: "log-debug", DefValue: false, Description: "Enable debug level logging"},
		{Name: "log-json", DefValue: false, Description: "Enable structured logging"},
	}

	cobra.OnInitialize(func() {
		v.SetConfigType("json")
		v.SetConfigName("config")
		v.AddConfigPath(os.Getenv("SELLER_PATH"))
		v.AddConfigPath(defaultConfigPath)
		_ = v.ReadInConfig()
	})

	common.ConfigureCLI(v, "SELLER", flags, rootCmd)
}

var rootCmd = &cobra.Command{
	Use:   daemonName,
	Short: "sellerd negotiates governance-vote prices with buyer agents",
	Long:  "sellerd negotiates governance-vote prices with buyer agents",
	PersistentPreRun: func(c *cobra.Command, args []string) {
		common.ExpandEnvVars(v, v.AllSettings())
		err := common.ConfigureLogging(v, []string{
			"sellerd",
			"sellerd/service",
			"negotiator",
			"policyeval",
			"transport/rest",
		})
		common.CheckErrf("setting log levels: %v", err)
	},
	Run: func(c *cobra.Command, args []string) {
		settings, err := common.MarshalConfig(v)
		common.CheckErrf("marshaling config: %v", err)
		log.Infof("loaded config: %s", string(settings))

		err = common.SetupInstrumentation(v.GetString("metrics-addr"))
		common.CheckErrf("booting instrumentation: %v", err)

		policy := v.GetString("policy")
		if file := v.GetString("policy-file"); file != "" {
			data, err := ioutil.ReadFile(file)
			common.CheckErrf("reading policy file: %v", err)
			policy = string(data)
		}

		var evaluator policyeval.Evaluator
		if endpoint := v.GetString("evaluator-endpoint"); endpoint != "" {
			evaluator = policyeval.NewLLMEvaluator(policyeval.LLMConfig{
				Endpoint: endpoint,
				Model:    v.GetString("evaluator-model"),
				APIKey:   v.GetString("evaluator-api-key"),
			})
		} else {
			floor, err := decimal.NewFromString(v.GetString("floor-price"))
			common.CheckErrf("parsing floor price: %v", err)
			asking, err := decimal.NewFromString(v.GetString("asking-price"))
			common.CheckErrf("parsing asking price: %v", err)
			evaluator = policyeval.NewRuleEvaluator(floor, asking)
		}

		listener, err := net.Listen("tcp", v.GetString("listen-addr"))
		common.CheckErrf("creating listener: %v", err)

		serv, err := service.New(service.Config{
			Listener: listener,
			Policy:   policy,
			Auction: negotiator.Config{
				AuctionDuration: v.GetDuration("auction-duration"),
			},
			Evaluator: evaluator,
		})
		common.CheckErrf("starting service: %v", err)

		common.HandleInterrupt(func() {
			common.CheckErrf("closing service: %v", serv.Close())
		})
	},
}

func main() {
	common.CheckErr(rootCmd.Execute())
}
