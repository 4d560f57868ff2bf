package main

import (
	"context"
	"fmt"
	"log"

	sheetstore "github.com/opsledger/go-sheetstore"
	"github.com/opsledger/go-sheetstore/adapters/googlesheets"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx := context.Background()

	// Initialize the Google Sheets transport with a JSON key file
	transport, err := googlesheets.NewWithJSONKeyFile(ctx, googlesheets.Config{
		SpreadsheetID: "your-spreadsheet-id",
	}, "./service-account.json")
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	// Create the store over the default business tables
	store := sheetstore.New(transport, sheetstore.DefaultRegistry(), googlesheets.DefaultStoreConfig())

	// Create any missing tables with their header rows
	if err := store.InitializeTables(ctx); err != nil {
		return fmt.Errorf("failed to initialize tables: %w", err)
	}

	// Create a client and a project for it
	clientID, err := store.Create(ctx, sheetstore.TableClients, sheetstore.Record{
		"name":     "Acme Corp",
		"email":    "billing@acme.example",
		"currency": "USD",
	})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	fmt.Printf("Created client %s\n", clientID)

	projectID, err := store.Create(ctx, sheetstore.TableProjects, sheetstore.Record{
		"name":      "Website relaunch",
		"client_id": clientID,
		"status":    "active",
		"budget":    12000.0,
		"tags":      []string{"web", "design"},
	})
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	// Query active projects over budget, newest first
	results, err := store.Query(ctx, sheetstore.TableProjects, sheetstore.Query{
		Predicates: []sheetstore.Predicate{
			{Column: "status", Operator: "eq", Value: "active"},
			{Column: "budget", Operator: "gte", Value: 10000},
		},
		Sort:  &sheetstore.Sort{Column: "created_at", Descending: true},
		Limit: 10,
	})
	if err != nil {
		return fmt.Errorf("failed to query: %w", err)
	}
	fmt.Printf("Found %d active projects with budget >= 10000:\n", len(results))
	for _, rec := range results {
		fmt.Printf("  %s (budget: %.0f)\n",
			rec.GetAsString("name", "?"), rec.GetAsFloat64("budget", 0))
	}

	// Mark the project completed
	if _, err := store.Update(ctx, sheetstore.TableProjects, projectID, sheetstore.Record{
		"status": "completed",
	}); err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	// Total budget across all projects
	total, err := store.Aggregate(ctx, sheetstore.TableProjects, sheetstore.AggSum, "budget")
	if err != nil {
		return fmt.Errorf("failed to aggregate: %w", err)
	}
	fmt.Printf("Total budget: %.2f\n", total)

	return nil
}
