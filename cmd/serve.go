package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kashisync/kashisync/internal/server"
	"github.com/kashisync/kashisync/internal/utils"
	"github.com/kashisync/kashisync/pkg/runner"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the status and run-trigger API",
	RunE: func(cmd *cobra.Command, args []string) error {
		storeKind, _ := cmd.Flags().GetString("store")

		reg, err := loadMerchants()
		if err != nil {
			return err
		}
		db, dbPath, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		lockDir, err := utils.LockDir(dbPath)
		if err != nil {
			return err
		}

		// A merchant whose lock is held has a live run in another process (kashisync sync).
		busy, err := utils.HeldLocks(lockDir, reg.Names())
		if err != nil {
			return err
		}
		for _, name := range busy {
			utils.Log.Infof("[%s] a run is in progress elsewhere, leaving it open", name)
		}
		if n, err := db.MarkInterrupted(ctx, busy...); err != nil {
			utils.Log.Warnf("Could not close interrupted runs: %v", err)
		} else if n > 0 {
			utils.Log.Infof("Marked %d interrupted run(s) as stopped", n)
		}

		factory, err := newFactory(&factoryOptions{store: storeKind, db: db})
		if err != nil {
			return err
		}
		m, err := runner.New(runner.Options{
			Merchants: reg,
			Factory:   factory,
			Ledger:    db,
			LockDir:   lockDir,
			Log:       utils.Log,
		})
		if err != nil {
			return err
		}
		defer m.Shutdown()

		srv := server.New(db, m, reg, viper.GetString("server.username"), viper.GetString("server.password"))
		return srv.Start(ctx, viper.GetString("server.listen"))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("store", "shopify", "Catalog store: shopify or local")
	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
}
