package database

import (
	"context"
	"log"

	_ "github.com/lib/pq"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// Container holds whatsmeow device credentials. Key material lives here,
// separate from the session metadata store, and whatsmeow writes rotated
// keys back on its own.
var Container *sqlstore.Container

func InitCredentialStore(dbURL string) {
	store.DeviceProps.Os = proto.String("GOWA Dispatch")

	dbLog := waLog.Stdout("Database", "WARN", true)
	container, err := sqlstore.New(context.Background(), "postgres", dbURL, dbLog)
	if err != nil {
		log.Fatal("Failed to connect credential store:", err)
	}
	Container = container
	log.Println("Credential store connected successfully")
}

// DeviceForJID looks up stored credentials by device identity. Returns nil
// when no credential material survives for that JID.
func DeviceForJID(ctx context.Context, jid string) *store.Device {
	parsed, err := types.ParseJID(jid)
	if err != nil {
		return nil
	}
	device, err := Container.GetDevice(ctx, parsed)
	if err != nil {
		log.Printf("⚠ Failed to look up device %s: %v", jid, err)
		return nil
	}
	return device
}
