package cmd

import (
	"context"

	alertDao "github.com/Laisky/disaster-alert/internal/web/alert/dao"
	emergencyDao "github.com/Laisky/disaster-alert/internal/web/emergency/dao"
	userDao "github.com/Laisky/disaster-alert/internal/web/user/dao"
	"github.com/Laisky/disaster-alert/library/db/mongo"
	"github.com/Laisky/disaster-alert/library/log"

	"github.com/Laisky/errors/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"
	mongoLib "go.mongodb.org/mongo-driver/mongo"
)

var migrateCMD = &cobra.Command{
	Use:   "migrate",
	Short: "migrate",
	Long:  `create mongodb indexes`,
	Args:  gcmd.NoExtraArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if err := initialize(ctx, cmd); err != nil {
			log.Logger.Panic("init", zap.Error(err))
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		db, err := dialMongo(ctx)
		if err != nil {
			log.Logger.Panic("migrate", zap.Error(err))
		}
		defer db.Close(ctx) //nolint:errcheck

		if err := migrate(ctx, db); err != nil {
			log.Logger.Panic("migrate", zap.Error(err))
		}
	},
}

// collectionIndexes lists every index the service relies on, by collection.
func collectionIndexes() map[string][]mongoLib.IndexModel {
	return map[string][]mongoLib.IndexModel{
		alertDao.ColAlerts:               alertDao.Indexes(),
		userDao.ColUsers:                 userDao.Indexes(),
		emergencyDao.ColEmergencyNumbers: emergencyDao.Indexes(),
	}
}

func migrate(ctx context.Context, db mongo.DB) error {
	for col, indexes := range collectionIndexes() {
		names, err := db.GetCol(col).Indexes().CreateMany(ctx, indexes)
		if err != nil {
			return errors.Wrapf(err, "create indexes on %s", col)
		}

		log.Logger.Info("indexes ready",
			zap.String("collection", col),
			zap.Strings("indexes", names))
	}

	return nil
}

func init() {
	rootCMD.AddCommand(migrateCMD)
}
