package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kashisync/kashisync/internal/utils"
	"github.com/spf13/cobra"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kashisync",
	Short: "Keep storefront catalogs in sync with Japanese confectionery shops.",
	Long: `kashisync crawls each configured merchant's shop, translates and reprices new items,
publishes them to the storefront and removes listings that sold out or disappeared.

Merchants are configured under "merchants" in ~/.kashisync.yaml.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.kashisync.yaml)")
	rootCmd.PersistentFlags().String("dbpath", "", "Path to SQLite DB file (default: ~/.config/kashisync/kashisync.sqlite)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	viper.BindPFlag("db.path", rootCmd.PersistentFlags().Lookup("dbpath"))
}

// initConfig reads in .env, the config file and ENV variables if set.
func initConfig() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error loading .env: %s\n", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".kashisync")
		viper.SetConfigType("yaml")
	}

	bindEnv()
	setDefaults()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := filepath.Join(home, ".kashisync.yaml")
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		} else {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	if err := utils.SetLogLevel(levelString); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// bindEnv lets credentials come from the environment (or .env) instead of the config file.
func bindEnv() {
	viper.AutomaticEnv()
	viper.BindEnv("shopify.access_token", "SHOPIFY_ACCESS_TOKEN")
	viper.BindEnv("shopify.shop", "SHOPIFY_SHOP")
	viper.BindEnv("translator.api_key", "OPENAI_API_KEY")
	viper.BindEnv("server.password", "KASHISYNC_SERVER_PASSWORD")
}

func setDefaults() {
	viper.SetDefault("shopify.shop", "")
	viper.SetDefault("shopify.access_token", "")
	viper.SetDefault("shopify.api_version", "2024-01")
	viper.SetDefault("shopify.request_delay", "500ms")
	viper.SetDefault("translator.provider", "openai")
	viper.SetDefault("translator.api_key", "")
	viper.SetDefault("translator.model", "gpt-4.1-mini")
	viper.SetDefault("translator.verify_language", true)
	viper.SetDefault("server.listen", ":8080")
	viper.SetDefault("server.username", "")
	viper.SetDefault("server.password", "")
	viper.SetDefault("merchants", map[string]interface{}{})
}
