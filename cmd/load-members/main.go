package main

import (
	"encoding/csv"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"

	"lucky-draw/internal/config"
	"lucky-draw/internal/db"
)

// Loads a project member pool from a csv with header uid,name,phone. Rows are
// upserted, so re-running with a refreshed export updates and reactivates the
// pool in place.
func main() {
	filePath := flag.String("file", "members.csv", "path to members csv")
	projectID := flag.String("project", "", "project id to load members into")
	clear := flag.Bool("clear", false, "deactivate existing members before loading")
	flag.Parse()

	if *projectID == "" {
		log.Fatal("project id is required")
	}
	project, err := uuid.Parse(*projectID)
	if err != nil {
		log.Fatalf("invalid project id: %v", err)
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}

	conn, err := db.Open(config.Load())
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	items, err := readMembers(*filePath)
	if err != nil {
		log.Fatalf("failed to read members: %v", err)
	}
	if len(items) == 0 {
		log.Fatal("no usable member rows found")
	}

	if *clear {
		cleared, err := db.ClearProjectMembers(conn, project)
		if err != nil {
			log.Fatalf("failed to clear members: %v", err)
		}
		log.Printf("deactivated %d existing members", cleared)
	}

	written, err := db.BulkUpsertMembers(conn, project, items)
	if err != nil {
		log.Fatalf("failed to upsert members: %v", err)
	}
	log.Printf("loaded %d members", written)
}

func readMembers(path string) ([]db.MemberImport, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var items []db.MemberImport
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if len(row) < 3 {
			continue
		}
		uid := strings.TrimSpace(row[0])
		name := strings.TrimSpace(row[1])
		phone := strings.TrimSpace(row[2])
		if uid == "" || phone == "" {
			continue
		}
		items = append(items, db.MemberImport{
			UID:      uid,
			Name:     name,
			Phone:    phone,
			IsActive: true,
		})
	}
	return items, nil
}
