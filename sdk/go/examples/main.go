package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"AgentFlow/sdk/go/agentflow"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "AgentFlow API address")
	session := flag.String("session", "demo", "session identifier")
	query := flag.String("query", "Translate 'Good Morning' into German and then multiply 5 and 6.", "query to run")
	async := flag.Bool("async", false, "submit the query as a task and wait for it")
	apiKey := flag.String("api-key", "", "API key for servers with auth enabled")
	flag.Parse()

	client, err := agentflow.NewClient(*baseURL, nil)
	if err != nil {
		log.Fatalf("create client: %v", err)
	}

	client.SetAPIKey(*apiKey)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if *async {
		created, err := client.SubmitTask(ctx, agentflow.TaskSubmission{SessionID: *session, Query: *query})
		if err != nil {
			log.Fatalf("submit task: %v", err)
		}
		final, err := client.WaitForTask(ctx, created.ID, time.Second)
		if err != nil {
			log.Fatalf("wait for task: %v", err)
		}
		fmt.Printf("task %s %s\n%s\n", final.ID, final.Status, final.FinalResult)
		return
	}

	exec, err := client.RunQuery(ctx, *session, *query)
	if err != nil {
		log.Fatalf("run query: %v", err)
	}
	for _, step := range exec.Steps {
		fmt.Printf("- %s\n", step.Description)
	}
	fmt.Printf("\n%s\n", exec.FinalResult)
}
