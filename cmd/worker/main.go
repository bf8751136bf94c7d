package main

import (
	"context"
	"log"
	"os"

	"dripapi/dbhelper"
	"dripapi/services"
	"dripapi/tasks"

	firebase "firebase.google.com/go/v4"
	"github.com/hibiken/asynq"
)

func main() {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")},
		asynq.Config{Concurrency: 10, Queues: map[string]int{
			"generate": 7,
		}},
	)
	awsService := &services.AWSService{}
	imageService := services.GoogleImageService{}
	err := awsService.InitClients(context.Background())
	if err != nil {
		log.Fatal("[Queue] Failed to initialize AWS provider: S3")
	}
	app, err := firebase.NewApp(context.Background(), nil)
	if err != nil {
		log.Fatalf("error initializing firebase app: %v\n", err)
		return
	}
	mux := asynq.NewServeMux()
	db := dbhelper.SetupDB()
	mux.HandleFunc("generate:tryon", func(ctx context.Context, t *asynq.Task) error {
		return tasks.HandleTryOnGenerationTask(ctx, t, db, imageService, awsService, app)
	})

	if err := srv.Run(mux); err != nil {
		log.Fatal(err)
	}
}
