// Copyright 2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/bigbird-vault/bb-api/common"
	"github.com/bigbird-vault/bb-api/data"
	"github.com/bigbird-vault/bb-api/data/database"
	"github.com/bigbird-vault/bb-api/middleware"
	"github.com/bigbird-vault/bb-api/observability/opentelemetry"
	"github.com/bigbird-vault/bb-api/router"

	"github.com/go-co-op/gocron"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	viper.BindEnv("server.port", "PORT")
	serveCmd.Flags().IntP("port", "p", 3000, "Port to run application server on")
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bbapi server",
	Long:  `Run HTTP server that implements the BigBird portfolio API`,
	Run: func(_ *cobra.Command, _ []string) {
		common.SetupLogging()
		common.SetupCache()
		log.Info().Msg("initialized logging")

		if viper.GetString("otlp.endpoint") != "" {
			shutdownTracing, err := opentelemetry.Setup()
			if err != nil {
				log.Fatal().Err(err).Msg("could not initialize tracing")
			}
			defer func() {
				if err := shutdownTracing(context.Background()); err != nil {
					log.Error().Err(err).Msg("could not shutdown tracing")
				}
			}()
		}

		// setup database
		if err := database.Connect(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}

		// warm the ticker search cache
		if err := data.LoadTickersFromDB(); err != nil {
			log.Warn().Err(err).Msg("could not warm ticker list")
		}

		app := fiber.New()

		// shutdown cleanly on interrupt
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt)
		go func() {
			sig := <-quit
			log.Info().Str("Signal", sig.String()).Msg("shutting down")
			database.LogOpenTransactions()
			if err := app.Shutdown(); err != nil {
				log.Fatal().Err(err).Msg("could not shutdown web server")
			}
		}()

		corsConfig := cors.Config{
			AllowOrigins: viper.GetString("server.cors_origins"),
			AllowHeaders: "*",
			AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
		}
		app.Use(cors.New(corsConfig))
		app.Use(middleware.NewLogger())

		router.SetupRoutes(app)

		// the ticker list only changes on ingest; refresh hourly
		tz, _ := time.LoadLocation("America/New_York")
		scheduler := gocron.NewScheduler(tz)
		scheduler.Every(1).Hours().Do(data.LoadTickersFromDB)
		scheduler.StartAsync()

		if err := app.Listen(":" + viper.GetString("server.port")); err != nil {
			log.Fatal().Err(err).Msg("could not start server")
		}
	},
}
