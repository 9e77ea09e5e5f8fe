package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Device actions recorded by the HTTP layer.
const (
	ActionDeviceCreate = "device.create"
	ActionDeviceUpdate = "device.update"
	ActionDeviceDelete = "device.delete"

	ResourceDevice = "device"
)

// Entry records one change to a device.
type Entry struct {
	ID       string
	Actor    string
	Role     string
	Action   string
	DeviceID int64
	// Metadata is the JSON body of the change, e.g. the fields ignored on update.
	Metadata  json.RawMessage
	IP        string
	UserAgent string
	CreatedAt time.Time
}

// NewDeviceEntry builds an entry for action on deviceID. A nil meta stores no metadata.
func NewDeviceEntry(action string, deviceID int64, meta map[string]any) (Entry, error) {
	entry := Entry{Action: action, DeviceID: deviceID}
	if meta == nil {
		return entry, nil
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: encode metadata: %w", err)
	}
	entry.Metadata = payload
	return entry, nil
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a random audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON returns the SHA256 hex digest of a metadata payload, or "" when empty.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
