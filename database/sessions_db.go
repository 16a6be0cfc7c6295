package database

import (
	"database/sql"
	"log"
)

// SessionsDB backs the Postgres session store when SESSIONS_DATABASE_URL is
// set. Nil otherwise; the registry then snapshots to a JSON file instead.
var SessionsDB *sql.DB

func InitSessionsDB(dbURL string) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatal("Failed to connect sessions DB:", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatal("Failed to ping sessions DB:", err)
	}
	SessionsDB = db
	log.Println("Sessions DB connected successfully")
}
